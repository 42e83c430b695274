package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

func TestMissingFileGivesDefaults(t *testing.T) {
	c, err := Read(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Addr, c.Addr)
	assert.Equal(t, def.Tune, c.Tune)
	assert.Equal(t, def.Dirs, c.Dirs)
	assert.Equal(t, def.Linkam, c.Linkam)
	assert.False(t, c.Constants.SyncOrderNumbers)
}

func TestFileOverlay(t *testing.T) {
	fn := filepath.Join(t.TempDir(), FileName)
	doc := `addr: ":9000"
pv:
  backend: ca
  timeoutsec: 2.5
constants:
  MEASURE_DARK_CURRENTS: true
  SYNC_ORDER_NUMBERS: true
tune:
  ar: 0.004
motors:
  a_stage.r: "9idcLAX:aero:c0:m1"
limits:
  s_stage.x:
    min: -5
    max: 5
`
	require.NoError(t, os.WriteFile(fn, []byte(doc), 0o644))
	c, err := Read(fn)
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Addr)
	assert.Equal(t, 0.004, c.Tune.AR)
	assert.Equal(t, 0.0025, c.Tune.MR, "unset keys keep their default")
	assert.Equal(t, "caget", c.PV.Caget)
	assert.Equal(t, "9idcLAX:aero:c0:m1", c.Motors["a_stage.r"])
	assert.Equal(t, 5.0, c.Limits["s_stage.x"].Max)
	opts := c.Options()
	assert.True(t, opts.MeasureDarkCurrents)
	assert.True(t, opts.SyncOrderNumbers)
	assert.Equal(t, "/share1/local_livedata", opts.LivedataDir)

	net, err := c.Network()
	require.NoError(t, err)
	ca, ok := net.(*pv.CANetwork)
	require.True(t, ok)
	assert.Equal(t, 2500, int(ca.Timeout.Milliseconds()))
}

func TestUnknownBackend(t *testing.T) {
	c := Default()
	c.PV.Backend = "pva"
	_, err := c.Network()
	assert.ErrorIs(t, err, ErrBackend)
}

func TestMotorOverridesRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := filepath.Join(dir, "motors.yml")
	doc := `scalers: []
motors:
- mne: ax
  name: analyzer x
  pv: "9idcLAX:m58:c0:m1"
- mne: dx
  name: detector x
  pv: "9idcLAX:m58:c0:m2"
- mne: sx
  name: sample x
  pv: "9idcLAX:m58:c0:m3"
`
	require.NoError(t, os.WriteFile(reg, []byte(doc), 0o644))
	c := Default()
	c.Registry = reg
	c.Motors = map[string]string{"dx": "9idcLAX:m58:c2:m7"}
	m, err := c.MotorOverrides([]string{"ax"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ax": "9idcLAX:m58:c0:m1", "dx": "9idcLAX:m58:c2:m7"}, m)
}

func TestWriteReadBack(t *testing.T) {
	c := Default()
	c.Addr = ":8123"
	fn := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteFile(fn, c))
	got, err := Read(fn)
	require.NoError(t, err)
	assert.Equal(t, ":8123", got.Addr)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, got))
	assert.Contains(t, buf.String(), "MEASURE_DARK_CURRENTS: false")
}
