// Package metadata assembles the key/value metadata recorded with every
// measurement.
package metadata

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// BeamlineID names the instrument in every record
const BeamlineID = "APS USAXS 9-ID-C"

// MD is a metadata dictionary
type MD map[string]interface{}

// Base returns the defaults: beamline and login identity, process id,
// software versions, and the EPICS settings of the environment
func Base(version string) MD {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	name := "synApps_xxx_user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	md := MD{
		"beamline_id":   BeamlineID,
		"proposal_id":   nil,
		"pid":           os.Getpid(),
		"login_id":      name + "@" + host,
		"USAXS_VERSION": version,
		"GO_VERSION":    runtime.Version(),
	}
	for k, v := range EPICSEnviron(os.Environ()) {
		md[k] = v
	}
	return md
}

// EPICSEnviron picks the EPICS* variables out of environ, a list of
// key=value pairs, leaving out EPICS_BASE*
func EPICSEnviron(environ []string) MD {
	md := MD{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(k, "EPICS") && !strings.HasPrefix(k, "EPICS_BASE") {
			md[k] = v
		}
	}
	return md
}

// Merge overlays the layers in order; later keys win.  nil layers are skipped.
func Merge(layers ...MD) MD {
	out := MD{}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// Keys returns the keys of md, sorted
func (md MD) Keys() []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write prints md as a key/value table, sorted by key
func (md MD) Write(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"key", "value"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, k := range md.Keys() {
		v := md[k]
		s := "None"
		if v != nil {
			s = fmt.Sprint(v)
		}
		table.Append([]string{k, s})
	}
	table.Render()
}
