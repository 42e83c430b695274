package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/config"
	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/generichttp"
	"github.com/APS-USAXS/ipython-usaxs/generichttp/ascii"
	"github.com/APS-USAXS/ipython-usaxs/generichttp/motion"
	"github.com/APS-USAXS/ipython-usaxs/generichttp/shutter"
	"github.com/APS-USAXS/ipython-usaxs/generichttp/thermal"
	"github.com/APS-USAXS/ipython-usaxs/server/middleware/locker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve motors, shutters and the Linkam over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, logger)
		if err != nil {
			return err
		}
		reg := prometheus.NewRegistry()
		mux, err := BuildMux(s, cfg, reg, logger)
		if err != nil {
			return err
		}
		logger.Info("now listening for requests", zap.String("addr", cfg.Addr))
		return http.ListenAndServe(cfg.Addr, mux)
	},
}

// gaugeTimeout bounds the PV reads behind each metric
const gaugeTimeout = 2 * time.Second

func gauge(log *zap.Logger, fcn func(ctx context.Context) (float64, error)) func() float64 {
	return func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), gaugeTimeout)
		defer cancel()
		v, err := fcn(ctx)
		if err != nil {
			log.Debug("metric read failed", zap.Error(err))
			return -1
		}
		return v
	}
}

func registerMetrics(reg prometheus.Registerer, s *session, heater thermal.Controller, log *zap.Logger) error {
	for name, sh := range s.b.Shutters() {
		sh := sh
		err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem:   "usaxs",
			Name:        "shutter_open",
			Help:        "1 if the shutter is open, 0 if closed, -1 if unknown.",
			ConstLabels: prometheus.Labels{"shutter": name},
		}, gauge(log, func(ctx context.Context) (float64, error) {
			st, err := sh.State(ctx)
			switch {
			case err != nil:
				return 0, err
			case st == devices.StateOpen:
				return 1, nil
			case st == devices.StateClose:
				return 0, nil
			}
			return -1, nil
		})))
		if err != nil {
			return err
		}
	}
	if heater != nil {
		err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "usaxs",
			Name:      "linkam_temperature_celsius",
			Help:      "Current temperature of the Linkam heater.",
		}, gauge(log, heater.Temperature)))
		if err != nil {
			return err
		}
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Subsystem: "usaxs",
		Name:      "scan_order_number",
		Help:      "Order number of the next USAXS scan.",
	}, gauge(log, func(ctx context.Context) (float64, error) {
		n, err := s.b.Terms.FlyScan.OrderNumber.Get(ctx)
		return float64(n), err
	})))
}

// zapLogger logs each request at debug level
func zapLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t0 := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(t0)))
		})
	}
}

// BuildMux mounts the motor, shutter and Linkam route tables, each behind
// its own lock, plus /endpoints and /metrics
func BuildMux(s *session, c config.Config, reg *prometheus.Registry, log *zap.Logger) (chi.Router, error) {
	root := chi.NewRouter()
	root.Use(middleware.Recoverer)
	root.Use(zapLogger(log))
	supergraph := map[string][]string{}

	mount := func(stem string, h generichttp.HTTPer, mw ...func(http.Handler) http.Handler) {
		lock := locker.New()
		locker.Inject(h, lock)
		stem = generichttp.SubMuxSanitize(stem)
		supergraph[stem] = h.RT().Endpoints()
		r := chi.NewRouter()
		r.Use(mw...)
		r.Use(lock.Check)
		h.RT().Bind(r)
		root.Mount(stem, r)
	}

	motors, lim := motion.NewHTTPMotors(s.b, c.Limits)
	mount("usaxs/motors", motors, lim.Check)
	mount("usaxs/shutters", shutter.NewHTTPShutters(s.b.Shutters()))

	var tc thermal.Controller
	if h, err := s.heater(c, log); err == nil {
		if t, ok := h.(thermal.Controller); ok {
			tc = t
			th := thermal.NewHTTPThermal(tc)
			if sh, ok := h.(serialHeater); ok {
				ascii.InjectRawComm(th, sh.c)
			}
			mount("usaxs/linkam", th)
		}
	} else {
		log.Warn("no Linkam routes", zap.Error(err))
	}

	if err := registerMetrics(reg, s, tc, log); err != nil {
		return nil, err
	}
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(supergraph); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}
