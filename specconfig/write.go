package specconfig

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/APS-USAXS/ipython-usaxs/util"
)

// WaChunk is how many motors go in one append_wa_motor_list call
const WaChunk = 8

func pyList(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = "'" + s + "'"
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// sortedMotors are the motors with a PV, sorted by mnemonic
func (c *Config) sortedMotors() []*Motor {
	mnes := make([]string, 0, len(c.Motors))
	for mne, m := range c.Motors {
		if m.PV != "" {
			mnes = append(mnes, mne)
		}
	}
	sort.Strings(mnes)
	out := make([]*Motor, len(mnes))
	for i, mne := range mnes {
		out[i] = c.Motors[mne]
	}
	return out
}

// identifier makes a SPEC mnemonic usable as a Python name
func identifier(mne string) string {
	return strings.ReplaceAll(mne, ".", "_")
}

// WriteOphyd writes the ophyd statements creating the scalers and motors of c
func WriteOphyd(w io.Writer, c *Config) error {
	ew := &errWriter{w: w}
	for i, d := range c.Devices["VM_EPICS_SC"] {
		mne := fmt.Sprintf("scaler%d", d.Index)
		if i == 0 {
			ew.println("from ophyd.scaler import ScalerCH")
		}
		ew.println(fmt.Sprintf("%s = ScalerCH('%s', name='%s')", mne, d.Prefix, mne))
		var chans []string
		for _, k := range c.CountersInOrder() {
			if k.Device != d {
				continue
			}
			key := fmt.Sprintf("chan%02d", k.Chan+1)
			ew.println(fmt.Sprintf("# %s : %s (%s)", key, k.Mne, k.Name))
			chans = append(chans, key)
		}
		if len(chans) > 0 {
			ew.println(fmt.Sprintf("%s.channels.read_attrs = %s", mne, pyList(chans)))
		}
	}

	var names []string
	for _, m := range c.sortedMotors() {
		mne := identifier(m.Mne)
		names = append(names, mne)
		ew.println(fmt.Sprintf("%s = EpicsMotor('%s', name='%s')  # %s", mne, m.PV, mne, m.Name))
	}
	for _, chunk := range util.ChunkStrings(names, WaChunk) {
		ew.println(fmt.Sprintf("append_wa_motor_list(%s)", strings.Join(chunk, ", ")))
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) println(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s+"\n")
}

// RegistryChannel is a named scaler channel
type RegistryChannel struct {
	Channel string `yaml:"channel"`
	Mne     string `yaml:"mne"`
	Name    string `yaml:"name"`
	PV      string `yaml:"pv"`
}

// RegistryScaler is a scaler and its named channels
type RegistryScaler struct {
	Name     string            `yaml:"name"`
	Prefix   string            `yaml:"prefix"`
	Channels []RegistryChannel `yaml:"channels,omitempty"`
}

// RegistryMotor is a motor record
type RegistryMotor struct {
	Mne  string `yaml:"mne"`
	Name string `yaml:"name"`
	PV   string `yaml:"pv"`
}

// Registry is the content of a SPEC config as a YAML document
type Registry struct {
	Scalers []RegistryScaler `yaml:"scalers"`
	Motors  []RegistryMotor  `yaml:"motors"`
}

// NewRegistry collects the scalers and motors of c
func NewRegistry(c *Config) Registry {
	var r Registry
	for _, d := range c.Devices["VM_EPICS_SC"] {
		s := RegistryScaler{Name: fmt.Sprintf("scaler%d", d.Index), Prefix: d.Prefix}
		for _, k := range c.CountersInOrder() {
			if k.Device == d {
				s.Channels = append(s.Channels, RegistryChannel{
					Channel: fmt.Sprintf("chan%02d", k.Chan+1),
					Mne:     k.Mne,
					Name:    k.Name,
					PV:      k.PV,
				})
			}
		}
		r.Scalers = append(r.Scalers, s)
	}
	for _, m := range c.sortedMotors() {
		r.Motors = append(r.Motors, RegistryMotor{Mne: identifier(m.Mne), Name: m.Name, PV: m.PV})
	}
	return r
}

// MotorPVs maps each motor mnemonic to its record, the form motor
// overrides are configured in
func (r Registry) MotorPVs() map[string]string {
	out := make(map[string]string, len(r.Motors))
	for _, m := range r.Motors {
		out[m.Mne] = m.PV
	}
	return out
}

// WriteYAML writes the registry of c as YAML
func WriteYAML(w io.Writer, c *Config) error {
	return yaml.NewEncoder(w).Encode(NewRegistry(c))
}

// ReadRegistry decodes a registry written by WriteYAML
func ReadRegistry(r io.Reader) (Registry, error) {
	var reg Registry
	err := yaml.NewDecoder(r).Decode(&reg)
	return reg, err
}
