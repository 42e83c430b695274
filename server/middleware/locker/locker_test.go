package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/APS-USAXS/ipython-usaxs/generichttp"
)

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func router() (http.Handler, *Locker) {
	tbl := table{rt: generichttp.RouteTable{}}
	tbl.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	l := New()
	Inject(tbl, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	tbl.rt.Bind(r)
	return r, l
}

func do(h http.Handler, method, path, body string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec.Code
}

func TestLockedRefusesMoves(t *testing.T) {
	h, l := router()
	if code := do(h, http.MethodPost, "/axis/ar/pos", `{"f64": 1}`); code != http.StatusOK {
		t.Errorf("expected 200 got %d", code)
	}
	if code := do(h, http.MethodPost, "/lock", `{"bool": true}`); code != http.StatusOK {
		t.Errorf("expected lock to succeed, got %d", code)
	}
	if !l.Locked() {
		t.Error("expected locker to be locked")
	}
	if code := do(h, http.MethodPost, "/axis/ar/pos", `{"f64": 1}`); code != http.StatusLocked {
		t.Errorf("expected 423 got %d", code)
	}
	if code := do(h, http.MethodPost, "/lock", `{"bool": false}`); code != http.StatusOK {
		t.Errorf("expected unlock to succeed while locked, got %d", code)
	}
	if code := do(h, http.MethodPost, "/axis/ar/pos", `{"f64": 1}`); code != http.StatusOK {
		t.Errorf("expected 200 after unlock got %d", code)
	}
}

func TestLockGet(t *testing.T) {
	h, l := router()
	l.Lock()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"bool":true}` {
		t.Errorf("expected {\"bool\":true} got %s", got)
	}
}
