package specconfig

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sample = `# ID @(#)getinfo.c	6.6  01/15/16 CSS
# Device nodes
SDEV_0	= /dev/ttyS0 19200 raw
VM_EPICS_M1	= 9idcLAX:m58:c0: 8
VM_EPICS_M1	= 9idcLAX:m58:c1: 8
VM_EPICS_SC	= 9idcLAX:vsc:c0 16
PSE_MAC_MOT	= kohzuE 256

# CAMAC Slot Assignments
#  CA_name_unit = slot [crate_number]

# Motor    cntrl steps sign slew base backl accel nada  flags   mne  name
MOT000 =    NONE  2000  1  2000  200   50  125    0 0x003       mx  mx
MOT001 = EPICS_M2:0/3   2000  1  2000  200   50  125    0 0x003      my  my
MOT002 = EPICS_M2:1/1   2000  1  2000  200   50  125    0 0x003   a.rp  AR piezo
MOT003 = EPICS_M2:0/1   2000  1  2000  200   50  125    0 0x003   ax  analyzer x
MOTPAR:read_mode = 7

# Counter   ctrl unit chan scale flags    mne  name
CNT000 = EPICS_SC  0  0 10000000 0x001      sec  seconds
CNT001 = EPICS_SC  0  1      1 0x002       I0  I0
CNT002 = EPICS_SC  0  3      1 0x000      upd  photodiode
CNT003 =     NONE  0  0      1 0x000      nul  nothing
`

func parseSample(t *testing.T) *Config {
	t.Helper()
	c, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	return c
}

func TestParseDevices(t *testing.T) {
	c := parseSample(t)
	require.Len(t, c.Devices["VM_EPICS_M1"], 2)
	exp := &Device{Name: "VM_EPICS_M1", Prefix: "9idcLAX:m58:c1:", Index: 1, NumChannels: 8}
	if diff := cmp.Diff(exp, c.Devices["VM_EPICS_M1"][1]); diff != "" {
		t.Errorf("device mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, c.Devices["VM_EPICS_SC"], 1)
	require.Len(t, c.Devices["PSE_MAC_MOT"], 1)
}

func TestParseMotorsAndCounters(t *testing.T) {
	c := parseSample(t)
	var mnes []string
	for _, m := range c.MotorsInOrder() {
		mnes = append(mnes, m.Mne)
	}
	if diff := cmp.Diff([]string{"mx", "my", "a.rp", "ax"}, mnes); diff != "" {
		t.Errorf("motor order (-want +got):\n%s", diff)
	}
	my := c.Motors["my"]
	require.Equal(t, "9idcLAX:m58:c0:m3", my.PV)
	require.Equal(t, 2000, my.Steps)
	require.Equal(t, "0x003", my.Flags)
	require.Equal(t, "AR piezo", c.Motors["a.rp"].Name)
	require.Equal(t, "9idcLAX:m58:c1:m1", c.Motors["a.rp"].PV)
	require.Empty(t, c.Motors["mx"].PV)

	require.Equal(t, "9idcLAX:vsc:c0.S1", c.Counters["sec"].PV)
	require.Equal(t, "9idcLAX:vsc:c0.S4", c.Counters["upd"].PV)
	require.Nil(t, c.Counters["nul"].Device)
	require.Equal(t, 10000000, c.Counters["sec"].Scale)
}

func TestParseUnhandled(t *testing.T) {
	c := parseSample(t)
	exp := []string{"SDEV_0\t= /dev/ttyS0 19200 raw", "MOTPAR:read_mode = 7"}
	if diff := cmp.Diff(exp, c.Unhandled); diff != "" {
		t.Errorf("unhandled (-want +got):\n%s", diff)
	}
}

func TestParseBadLine(t *testing.T) {
	_, err := Parse(strings.NewReader("MOT000 = EPICS_M2:0/0 two 1 2 3 4 5 6 0x0 m m\n"))
	require.True(t, errors.Is(err, ErrSyntax))
	require.Contains(t, err.Error(), "line 1")
}

func TestParseDuplicateKeepsPosition(t *testing.T) {
	in := "CNT000 = NONE 0 0 1 0x0 a first\nCNT001 = NONE 0 0 1 0x0 b b\nCNT002 = NONE 0 0 1 0x0 a again\n"
	c, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	k := c.CountersInOrder()
	require.Len(t, k, 2)
	require.Equal(t, "a", k[0].Mne)
	require.Equal(t, "again", k[0].Name)
}

func TestWriteOphyd(t *testing.T) {
	c := parseSample(t)
	var buf bytes.Buffer
	require.NoError(t, WriteOphyd(&buf, c))
	exp := `from ophyd.scaler import ScalerCH
scaler0 = ScalerCH('9idcLAX:vsc:c0', name='scaler0')
# chan01 : sec (seconds)
# chan02 : I0 (I0)
# chan04 : upd (photodiode)
scaler0.channels.read_attrs = ['chan01', 'chan02', 'chan04']
a_rp = EpicsMotor('9idcLAX:m58:c1:m1', name='a_rp')  # AR piezo
ax = EpicsMotor('9idcLAX:m58:c0:m1', name='ax')  # analyzer x
my = EpicsMotor('9idcLAX:m58:c0:m3', name='my')  # my
append_wa_motor_list(a_rp, ax, my)
`
	if diff := cmp.Diff(exp, buf.String()); diff != "" {
		t.Errorf("ophyd (-want +got):\n%s", diff)
	}
}

func TestWaMotorListChunks(t *testing.T) {
	var b strings.Builder
	b.WriteString("VM_EPICS_M1 = 9idcLAX:m58:c0: 16\n")
	for i := 0; i < 10; i++ {
		b.WriteString("MOT00" + string(rune('0'+i)) + " = EPICS_M2:0/" + string(rune('0'+i)) +
			" 1 1 1 1 1 1 0 0x0 m" + string(rune('0'+i)) + " m\n")
	}
	c, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteOphyd(&buf, c))
	out := buf.String()
	require.Equal(t, 2, strings.Count(out, "append_wa_motor_list("))
	require.Contains(t, out, "append_wa_motor_list(m8, m9)\n")
	require.NotContains(t, out, "ScalerCH")
}

func TestRegistryRoundTrip(t *testing.T) {
	c := parseSample(t)
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, c))
	reg, err := ReadRegistry(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(NewRegistry(c), reg); diff != "" {
		t.Errorf("registry (-want +got):\n%s", diff)
	}
	require.Equal(t, "9idcLAX:m58:c0:m1", reg.MotorPVs()["ax"])
	require.Len(t, reg.Scalers[0].Channels, 3)
}
