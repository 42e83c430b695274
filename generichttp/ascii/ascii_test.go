package ascii

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/APS-USAXS/ipython-usaxs/generichttp"
)

type echo struct{ got string }

func (e *echo) Raw(ctx context.Context, cmd string) (string, error) {
	e.got = cmd
	return "ok " + cmd, nil
}

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func TestHTTPRaw(t *testing.T) {
	e := &echo{}
	tbl := table{}
	InjectRawComm(tbl, e)
	r := chi.NewRouter()
	generichttp.RouteTable(tbl).Bind(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/raw", strings.NewReader(`{"str": "T"}`)))
	if e.got != "T" {
		t.Errorf("expected T got %q", e.got)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"str":"ok T"}` {
		t.Errorf("expected {\"str\":\"ok T\"} got %s", body)
	}
}
