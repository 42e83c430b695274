// Package config holds the configuration of the usaxs program.
//
// Defaults come from Default and are overlaid by a YAML file.  A missing
// file leaves the defaults in place.
package config

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"go.uber.org/zap"
	yml "gopkg.in/yaml.v2"

	"github.com/APS-USAXS/ipython-usaxs/commandlist"
	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/specconfig"
	"github.com/APS-USAXS/ipython-usaxs/tune"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

// FileName is the default configuration file
const FileName = "usaxs.yml"

// ErrBackend is returned for an unknown PV backend name
var ErrBackend = errors.New("unknown PV backend")

// PV selects how process variables are reached
type PV struct {
	// Backend is "mock" or "ca"
	Backend string `koanf:"backend" yaml:"backend"`

	Caget string `koanf:"caget" yaml:"caget"`
	Caput string `koanf:"caput" yaml:"caput"`

	// TimeoutSec bounds each caget or caput call
	TimeoutSec float64 `koanf:"timeoutsec" yaml:"timeoutsec"`
}

// Constants are the switches of the command list
type Constants struct {
	MeasureDarkCurrents bool `koanf:"MEASURE_DARK_CURRENTS" yaml:"MEASURE_DARK_CURRENTS"`
	SyncOrderNumbers    bool `koanf:"SYNC_ORDER_NUMBERS" yaml:"SYNC_ORDER_NUMBERS"`
}

// Dirs are where command tables are posted and archived
type Dirs struct {
	Livedata  string `koanf:"livedata" yaml:"livedata"`
	Posterity string `koanf:"posterity" yaml:"posterity"`
	Archive   string `koanf:"archive" yaml:"archive"`
}

// Linkam configures the heater used by the temperature series
type Linkam struct {
	// Kind is "ci94", "t96" or "serial"
	Kind string `koanf:"kind" yaml:"kind"`

	CI94Prefix string `koanf:"ci94prefix" yaml:"ci94prefix"`
	T96Prefix  string `koanf:"t96prefix" yaml:"t96prefix"`

	// Port is the serial port of a directly connected controller
	Port string `koanf:"port" yaml:"port"`
}

// Config is the whole configuration
type Config struct {
	Addr string `koanf:"addr" yaml:"addr"`

	// Mock simulates the beamline on an in-memory PV network
	Mock bool `koanf:"mock" yaml:"mock"`

	PV        PV          `koanf:"pv" yaml:"pv"`
	Constants Constants   `koanf:"constants" yaml:"constants"`
	Dirs      Dirs        `koanf:"dirs" yaml:"dirs"`
	Tune      tune.Ranges `koanf:"tune" yaml:"tune"`

	UseMSStage bool `koanf:"usemsstage" yaml:"usemsstage"`

	// Registry is a motor registry written by spec2ophyd --yaml; its
	// motors are overridden by Motors
	Registry string            `koanf:"registry" yaml:"registry"`
	Motors   map[string]string `koanf:"motors" yaml:"motors"`

	// Limits are software limits imposed on HTTP moves, by motor name
	Limits map[string]util.Limiter `koanf:"limits" yaml:"limits"`

	Metadata map[string]interface{} `koanf:"metadata" yaml:"metadata"`
	Linkam   Linkam                 `koanf:"linkam" yaml:"linkam"`
}

// Default is the configuration used when no file is present
func Default() Config {
	return Config{
		Addr: ":8000",
		Mock: true,
		PV: PV{
			Backend:    "mock",
			Caget:      "caget",
			Caput:      "caput",
			TimeoutSec: 1,
		},
		Dirs: Dirs{
			Livedata:  "/share1/local_livedata",
			Posterity: "/share1/log/macros",
		},
		Tune:     tune.DefaultRanges(),
		Motors:   map[string]string{},
		Limits:   map[string]util.Limiter{},
		Metadata: map[string]interface{}{},
		Linkam: Linkam{
			Kind:       "ci94",
			CI94Prefix: "9idcLAX:ci94:",
			T96Prefix:  "9idcLINKAM:tc1:",
			Port:       "/dev/ttyUSB0",
		},
	}
}

// Delim separates nested keys.  Motor names contain dots, so the usual "."
// would split them.
const Delim = "/"

// Load returns the defaults overlaid by filename
func Load(filename string) (*koanf.Koanf, error) {
	k := koanf.New(Delim)
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return k, err
	}
	if err := k.Load(file.Provider(filename), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return k, err
		}
	}
	return k, nil
}

// Read loads filename and unmarshals it
func Read(filename string) (Config, error) {
	var c Config
	k, err := Load(filename)
	if err != nil {
		return c, err
	}
	err = k.Unmarshal("", &c)
	return c, err
}

// Write encodes c as YAML
func Write(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}

// WriteFile writes c to filename, replacing it
func WriteFile(filename string, c Config) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(f, c)
}

// Network builds the PV network for the configured backend
func (c Config) Network() (pv.Network, error) {
	switch c.PV.Backend {
	case "mock", "":
		return pv.NewMockNetwork(), nil
	case "ca":
		return &pv.CANetwork{
			Caget:   c.PV.Caget,
			Caput:   c.PV.Caput,
			Timeout: util.SecsToDuration(c.PV.TimeoutSec),
		}, nil
	default:
		return nil, ErrBackend
	}
}

// MotorOverrides merges the registry file's motors with Motors.  Registry
// motors whose mnemonic is not in known are skipped.
func (c Config) MotorOverrides(known []string, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := map[string]string{}
	if c.Registry != "" {
		f, err := os.Open(c.Registry)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reg, err := specconfig.ReadRegistry(f)
		if err != nil {
			return nil, err
		}
		names := make(map[string]bool, len(known))
		for _, k := range known {
			names[k] = true
		}
		for k, v := range reg.MotorPVs() {
			if !names[k] {
				log.Debug("registry motor not on the beamline", zap.String("mne", k))
				continue
			}
			out[k] = v
		}
		log.Debug("motor registry loaded", zap.String("file", c.Registry), zap.Int("motors", len(out)))
	}
	for k, v := range c.Motors {
		out[k] = v
	}
	return out, nil
}

// Options are the command list options
func (c Config) Options() commandlist.Options {
	return commandlist.Options{
		MeasureDarkCurrents: c.Constants.MeasureDarkCurrents,
		SyncOrderNumbers:    c.Constants.SyncOrderNumbers,
		LivedataDir:         c.Dirs.Livedata,
		PosterityDir:        c.Dirs.Posterity,
		ArchiveDir:          c.Dirs.Archive,
	}
}
