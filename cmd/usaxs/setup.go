package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/config"
	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/linkam"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/plans"
	"github.com/APS-USAXS/ipython-usaxs/process"
	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/tune"
)

var errLinkamKind = errors.New("linkam kind must be ci94, t96 or serial")

// session is the instrument assembled from the configuration
type session struct {
	net  pv.Network
	b    *devices.Beamline
	t    *tune.Tuners
	inst *plans.Instrument
}

func newSession(c config.Config, log *zap.Logger) (*session, error) {
	net, err := c.Network()
	if err != nil {
		return nil, err
	}
	plain, err := devices.New(net, zap.NewNop(), nil)
	if err != nil {
		return nil, err
	}
	overrides, err := c.MotorOverrides(plain.MotorNames(), log)
	if err != nil {
		return nil, err
	}
	b, err := devices.New(net, log, overrides)
	if err != nil {
		return nil, err
	}
	if mock, ok := net.(*pv.MockNetwork); ok && c.Mock {
		mock.Permissive = true
		devices.Simulate(mock, b)
		log.Info("running on a simulated beamline")
	}
	t := tune.New(b, c.Tune, c.UseMSStage, log)
	inst := plans.New(b, t, log)
	inst.MD = metadata.Merge(metadata.Base(Version), metadata.MD(c.Metadata))
	return &session{net: net, b: b, t: t, inst: inst}, nil
}

// serialHeater is a Linkam on a serial port seen as a process controller
type serialHeater struct {
	*process.Controller
	c *linkam.Controller
}

func (h serialHeater) SetRate(ctx context.Context, degPerMin float64) error {
	return h.c.SetRate(ctx, degPerMin)
}

// heater builds the configured Linkam controller
func (s *session) heater(c config.Config, log *zap.Logger) (plans.Heater, error) {
	switch c.Linkam.Kind {
	case "ci94":
		return process.NewLinkamCI94(s.net, c.Linkam.CI94Prefix, log), nil
	case "t96":
		return process.NewLinkamT96(s.net, c.Linkam.T96Prefix, log), nil
	case "serial":
		lc := linkam.NewController(c.Linkam.Port)
		return serialHeater{
			Controller: process.New("Linkam "+c.Linkam.Port, lc.Signal(), lc.Target(), "C", log),
			c:          lc,
		}, nil
	}
	return nil, errLinkamKind
}
