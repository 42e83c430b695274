// Package specconfig reads the hardware configuration file of the SPEC
// control program and rewrites it as device setup for this toolkit.
package specconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// KnownDevices are the controller kinds whose lines are read as devices
var KnownDevices = []string{"PSE_MAC_MOT", "VM_EPICS_M1", "VM_EPICS_SC"}

// ErrSyntax is returned for a line that does not have the expected fields
var ErrSyntax = errors.New("SPEC config syntax error")

var (
	counterLine = regexp.MustCompile(`^CNT\d+\s`)
	motorLine   = regexp.MustCompile(`^MOT\d+\s*=`)
)

// Device is a multi-channel controller, e.g.
//
//	VM_EPICS_M1 = 9idcLAX:m58:c0: 8
type Device struct {
	Name        string
	Prefix      string
	Index       int // 0-based among devices of the same Name
	NumChannels int
}

// Motor is one motor channel, e.g.
//
//	MOT002 = EPICS_M2:0/3 2000 1 2000 200 50 125 0 0x003 my my
type Motor struct {
	Index int
	Cntrl string

	Steps, Sign, Slew, Base, Backl, Accel, Nada int

	Flags     string
	Mne, Name string

	Device *Device
	PV     string
}

// Counter is one counter channel, e.g.
//
//	CNT000 = EPICS_SC 0 0 10000000 0x001 sec seconds
type Counter struct {
	Index             int
	Ctrl              string
	Unit, Chan, Scale int
	Flags             string
	Mne, Name         string

	Device *Device
	PV     string
}

// Config is a parsed SPEC config file
type Config struct {
	Devices   map[string][]*Device
	Motors    map[string]*Motor
	Counters  map[string]*Counter
	Unhandled []string

	motorOrder, counterOrder []string
}

// popWord splits off the first white space separated word
func popWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// popInts pops len(dst) integers
func popInts(s string, dst ...*int) (string, error) {
	for _, d := range dst {
		var w string
		w, s = popWord(s)
		v, err := strconv.Atoi(w)
		if err != nil {
			return s, fmt.Errorf("%w: %q is not an integer", ErrSyntax, w)
		}
		*d = v
	}
	return s, nil
}

func parseDevice(line string) (*Device, error) {
	f := strings.Fields(line)
	if len(f) != 4 || f[1] != "=" {
		return nil, fmt.Errorf("%w: device line needs NAME = prefix N", ErrSyntax)
	}
	n, err := strconv.Atoi(f[3])
	if err != nil {
		return nil, fmt.Errorf("%w: channel count %q", ErrSyntax, f[3])
	}
	return &Device{Name: f[0], Prefix: f[2], NumChannels: n}, nil
}

func parseMotor(line string) (*Motor, error) {
	lhs, rhs, _ := strings.Cut(line, "=")
	idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lhs), "MOT")))
	if err != nil {
		return nil, fmt.Errorf("%w: motor index in %q", ErrSyntax, lhs)
	}
	m := &Motor{Index: idx}
	m.Cntrl, rhs = popWord(rhs)
	rhs, err = popInts(rhs, &m.Steps, &m.Sign, &m.Slew, &m.Base, &m.Backl, &m.Accel, &m.Nada)
	if err != nil {
		return nil, err
	}
	m.Flags, rhs = popWord(rhs)
	m.Mne, m.Name = popWord(rhs)
	if m.Mne == "" {
		return nil, fmt.Errorf("%w: motor %d has no mnemonic", ErrSyntax, idx)
	}
	return m, nil
}

func parseCounter(line string) (*Counter, error) {
	w, r := popWord(line)
	idx, err := strconv.Atoi(strings.TrimPrefix(w, "CNT"))
	if err != nil {
		return nil, fmt.Errorf("%w: counter index in %q", ErrSyntax, w)
	}
	c := &Counter{Index: idx}
	if w, r = popWord(r); w != "=" {
		return nil, fmt.Errorf("%w: expected = after CNT%03d", ErrSyntax, idx)
	}
	c.Ctrl, r = popWord(r)
	r, err = popInts(r, &c.Unit, &c.Chan, &c.Scale)
	if err != nil {
		return nil, err
	}
	c.Flags, r = popWord(r)
	c.Mne, c.Name = popWord(r)
	if c.Mne == "" {
		return nil, fmt.Errorf("%w: counter %d has no mnemonic", ErrSyntax, idx)
	}
	return c, nil
}

func (c *Config) device(kind string, unit int) *Device {
	list := c.Devices[kind]
	if unit < 0 || unit >= len(list) {
		return nil
	}
	return list[unit]
}

// bind finds the EPICS record of a motor on an EPICS_M2 unit/channel
func (c *Config) bindMotor(m *Motor) {
	uc, ok := strings.CutPrefix(m.Cntrl, "EPICS_M2:")
	if !ok {
		return
	}
	us, cs, ok := strings.Cut(uc, "/")
	if !ok {
		return
	}
	unit, err1 := strconv.Atoi(us)
	ch, err2 := strconv.Atoi(cs)
	if err1 != nil || err2 != nil {
		return
	}
	if d := c.device("VM_EPICS_M1", unit); d != nil {
		m.Device = d
		m.PV = fmt.Sprintf("%sm%d", d.Prefix, ch)
	}
}

// bindCounter finds the scaler channel of a counter.  SPEC numbers
// channels from 0 and the scaler record from 1.
func (c *Config) bindCounter(k *Counter) {
	if !strings.HasPrefix(k.Ctrl, "EPICS_SC") {
		return
	}
	if d := c.device("VM_EPICS_SC", k.Unit); d != nil {
		k.Device = d
		k.PV = fmt.Sprintf("%s.S%d", d.Prefix, k.Chan+1)
	}
}

func isKnownDevice(name string) bool {
	for _, d := range KnownDevices {
		if d == name {
			return true
		}
	}
	return false
}

// Parse reads a SPEC config file.  Comment and blank lines are skipped;
// lines that are not devices, motors or counters are kept in Unhandled.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{
		Devices:  make(map[string][]*Device),
		Motors:   make(map[string]*Motor),
		Counters: make(map[string]*Counter),
	}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word0, _, _ := strings.Cut(line, "=")
		word0 = strings.TrimSpace(word0)
		switch {
		case isKnownDevice(word0):
			d, err := parseDevice(line)
			if err != nil {
				return c, fmt.Errorf("line %d: %w", n, err)
			}
			d.Index = len(c.Devices[d.Name])
			c.Devices[d.Name] = append(c.Devices[d.Name], d)
		case word0 == "MOTPAR:read_mode":
			c.Unhandled = append(c.Unhandled, line)
		case counterLine.MatchString(line):
			k, err := parseCounter(line)
			if err != nil {
				return c, fmt.Errorf("line %d: %w", n, err)
			}
			c.bindCounter(k)
			if _, dup := c.Counters[k.Mne]; !dup {
				c.counterOrder = append(c.counterOrder, k.Mne)
			}
			c.Counters[k.Mne] = k
		case motorLine.MatchString(line):
			m, err := parseMotor(line)
			if err != nil {
				return c, fmt.Errorf("line %d: %w", n, err)
			}
			c.bindMotor(m)
			if _, dup := c.Motors[m.Mne]; !dup {
				c.motorOrder = append(c.motorOrder, m.Mne)
			}
			c.Motors[m.Mne] = m
		default:
			c.Unhandled = append(c.Unhandled, line)
		}
	}
	return c, sc.Err()
}

// ParseFile reads a SPEC config file from disk
func ParseFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// CountersInOrder lists the counters in the order the file defines them
func (c *Config) CountersInOrder() []*Counter {
	out := make([]*Counter, 0, len(c.counterOrder))
	for _, mne := range c.counterOrder {
		out = append(out, c.Counters[mne])
	}
	return out
}

// MotorsInOrder lists the motors in the order the file defines them
func (c *Config) MotorsInOrder() []*Motor {
	out := make([]*Motor, 0, len(c.motorOrder))
	for _, mne := range c.motorOrder {
		out = append(out, c.Motors[mne])
	}
	return out
}
