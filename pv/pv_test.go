package pv_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

func TestMockUnsetIsNotConnected(t *testing.T) {
	n := pv.NewMockNetwork()
	_, err := n.Get(context.Background(), "9idcLAX:nothing")
	if !errors.Is(err, pv.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected got %v", err)
	}
}

func TestMockPutRunsHooks(t *testing.T) {
	ctx := context.Background()
	n := pv.NewMockNetwork()
	n.Follow("9idcLAX:m58:c0:m1.VAL", "9idcLAX:m58:c0:m1.RBV")
	require.NoError(t, pv.NewFloat(n, "9idcLAX:m58:c0:m1.VAL").Put(ctx, 12.5))
	rbv, err := pv.NewFloat(n, "9idcLAX:m58:c0:m1.RBV").Get(ctx)
	require.NoError(t, err)
	if rbv != 12.5 {
		t.Errorf("expected %v got %v", 12.5, rbv)
	}
	assert.Len(t, n.History(), 1)
}

func TestStringPutTrims(t *testing.T) {
	ctx := context.Background()
	n := pv.NewMockNetwork()
	s := pv.NewString(n, "9idcLAX:state")
	long := strings.Repeat("x", 50)
	require.NoError(t, s.Put(ctx, long))
	got, err := s.Get(ctx)
	require.NoError(t, err)
	if len(got) != 39 {
		t.Errorf("expected %v got %v", 39, len(got))
	}
}

func TestLongStringPutWhole(t *testing.T) {
	ctx := context.Background()
	n := pv.NewMockNetwork()
	s := pv.NewLongString(n, "usaxs_pilatus1:HDF1:FilePath")
	long := "/mnt/usaxscontrol/USAXS_data/2019-11/user_working_folder_saxs/"
	require.NoError(t, s.Put(ctx, long))
	got, err := s.Get(ctx)
	require.NoError(t, err)
	if got != long {
		t.Errorf("expected %q got %q", long, got)
	}
}

func TestLongStringFromCharWaveform(t *testing.T) {
	n := pv.NewMockNetwork()
	n.Seed("usaxs_pilatus1:HDF1:FullFileName_RBV", pv.ArrayValue([]float64{47, 116, 109, 112, 0, 0}))
	got, err := pv.NewLongString(n, "usaxs_pilatus1:HDF1:FullFileName_RBV").Get(context.Background())
	require.NoError(t, err)
	if got != "/tmp" {
		t.Errorf("expected %q got %q", "/tmp", got)
	}
}

func TestBoolFromEnumString(t *testing.T) {
	ctx := context.Background()
	n := pv.NewMockNetwork()
	n.SeedString("PA:09ID:STA_C_NO_ACCESS.VAL", "ON")
	n.SeedString("9idcLAX:open", "Open")
	b, err := pv.NewBool(n, "9idcLAX:open").Get(ctx)
	require.NoError(t, err)
	assert.True(t, b)
	_, err = pv.NewBool(n, "PA:09ID:STA_C_NO_ACCESS.VAL").Get(ctx)
	assert.ErrorIs(t, err, pv.ErrWrongType)
}

func TestIntRounds(t *testing.T) {
	n := pv.NewMockNetwork()
	n.SeedFloat("9idcLAX:USAXS:FS_OrderNumber", 41.9999)
	i, err := pv.NewInt(n, "9idcLAX:USAXS:FS_OrderNumber").Get(context.Background())
	require.NoError(t, err)
	if i != 42 {
		t.Errorf("expected %v got %v", 42, i)
	}
}

func TestParseCagetOutput(t *testing.T) {
	cases := []struct {
		in   string
		want pv.Value
	}{
		{"1.25", pv.FloatValue(1.25)},
		{"3 1 2 3", pv.Value{Kind: pv.KindArray, Array: []float64{1, 2, 3}}},
		{"USAXS in beam", pv.StringValue("USAXS in beam")},
		{"Done", pv.StringValue("Done")},
	}
	for _, c := range cases {
		got := pv.ParseCagetOutput(c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("ParseCagetOutput(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := pv.NewMockNetwork()
	err := n.Put(ctx, "x", pv.FloatValue(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermissiveReadsZero(t *testing.T) {
	n := pv.NewMockNetwork()
	n.Permissive = true
	f, err := pv.NewFloat(n, "9idcLAX:anything").Get(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f)
	assert.False(t, n.Has("9idcLAX:anything"))
}
