package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/config"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

func testMux(t *testing.T) http.Handler {
	t.Helper()
	c := config.Default()
	c.Limits = map[string]util.Limiter{"s_stage.x": {Min: -1, Max: 1}}
	s, err := newSession(c, zap.NewNop())
	require.NoError(t, err)
	mux, err := BuildMux(s, c, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return mux
}

func request(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestEndpoints(t *testing.T) {
	mux := testMux(t)
	body := request(mux, http.MethodGet, "/endpoints", "").Body.String()
	for _, stem := range []string{"/usaxs/motors", "/usaxs/shutters", "/usaxs/linkam"} {
		assert.Contains(t, body, stem)
	}
	assert.Contains(t, body, "POST /axis/{axis}/pos")
}

func TestMotorRoutesLockAndLimit(t *testing.T) {
	mux := testMux(t)
	assert.Equal(t, http.StatusOK, request(mux, http.MethodPost, "/usaxs/motors/axis/s_stage.x/pos", `{"f64": 0.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, request(mux, http.MethodPost, "/usaxs/motors/axis/s_stage.x/pos", `{"f64": 2}`).Code)

	require.Equal(t, http.StatusOK, request(mux, http.MethodPost, "/usaxs/motors/lock", `{"bool": true}`).Code)
	assert.Equal(t, http.StatusLocked, request(mux, http.MethodPost, "/usaxs/motors/axis/s_stage.x/pos", `{"f64": 0}`).Code)
	assert.Equal(t, http.StatusOK, request(mux, http.MethodPost, "/usaxs/shutters/shutter/usaxs_shutter/open", "").Code,
		"each route table has its own lock")
}

func TestMetrics(t *testing.T) {
	mux := testMux(t)
	body := request(mux, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, body, `usaxs_shutter_open{shutter="usaxs_shutter"}`)
	assert.Contains(t, body, "usaxs_linkam_temperature_celsius")
	assert.Contains(t, body, "usaxs_scan_order_number")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yml")))
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "usaxs version "+Version+"\n", execute(t, "version"))
}

func TestSpec2Ophyd(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "config")
	doc := "VM_EPICS_M1 = 9idcLAX:m58:c0: 8\nMOT000 = EPICS_M2:0/2 1 1 1 1 1 1 0 0x0 sx sample x\n"
	require.NoError(t, os.WriteFile(fn, []byte(doc), 0o644))
	out := execute(t, "spec2ophyd", fn)
	assert.Contains(t, out, "sx = EpicsMotor('9idcLAX:m58:c0:m2', name='sx')  # sample x\n")
	out = execute(t, "spec2ophyd", "--yaml", fn)
	assert.Contains(t, out, "mne: sx")
	assert.Contains(t, out, "9idcLAX:m58:c0:m2")
}

func TestSummarize(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "cmds.txt")
	require.NoError(t, os.WriteFile(fn, []byte("SAXS 1 2 0.5 water\n"), 0o644))
	out := execute(t, "summarize", fn)
	assert.Contains(t, out, "Command file: "+fn)
	assert.Contains(t, out, "water")
}
