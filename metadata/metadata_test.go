package metadata

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEPICSEnviron(t *testing.T) {
	env := []string{
		"EPICS_CA_ADDR_LIST=164.54.53.99",
		"EPICS_CA_AUTO_ADDR_LIST=NO",
		"EPICS_BASE=/APSshare/epics/base",
		"EPICS_BASE_VERSION=3.15",
		"HOME=/home/beams/USAXS",
		"EPICSX",
	}
	got := EPICSEnviron(env)
	want := MD{
		"EPICS_CA_ADDR_LIST":      "164.54.53.99",
		"EPICS_CA_AUTO_ADDR_LIST": "NO",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EPICS environment mismatch (-want +got):\n%s", diff)
	}
}

func TestBase(t *testing.T) {
	md := Base("1.2.3")
	if md["beamline_id"] != BeamlineID {
		t.Errorf("expected %v got %v", BeamlineID, md["beamline_id"])
	}
	if v, ok := md["proposal_id"]; !ok || v != nil {
		t.Errorf("proposal_id should be present and nil, got %v", v)
	}
	if md["pid"] != os.Getpid() {
		t.Errorf("expected %v got %v", os.Getpid(), md["pid"])
	}
	if !strings.Contains(md["login_id"].(string), "@") {
		t.Errorf("login_id %q is not user@host", md["login_id"])
	}
}

func TestMergeLaterWins(t *testing.T) {
	got := Merge(MD{"a": 1, "b": 2}, nil, MD{"b": 3, "c": 4})
	want := MD{"a": 1, "b": 3, "c": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWriteSorted(t *testing.T) {
	var buf bytes.Buffer
	MD{"zeta": 1, "alpha": nil}.Write(&buf)
	out := buf.String()
	if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
		t.Errorf("keys are not sorted:\n%s", out)
	}
	if !strings.Contains(out, "None") {
		t.Errorf("nil values should print as None:\n%s", out)
	}
}
