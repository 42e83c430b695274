package motion

import (
	"context"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/generichttp"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

// MotorGroup presents the motors of a beamline as named axes
type MotorGroup struct {
	B *devices.Beamline

	rt generichttp.RouteTable
}

// NewHTTPMotors binds the move, stop, velocity and axis list routes of
// the beamline's motors, with the limits of LimitMiddleware applied
func NewHTTPMotors(b *devices.Beamline, limits map[string]util.Limiter) (*MotorGroup, *LimitMiddleware) {
	g := &MotorGroup{B: b, rt: generichttp.RouteTable{}}
	HTTPMove(g, g.rt)
	HTTPStop(g, g.rt)
	HTTPSpeed(g, g.rt)
	HTTPList(g, g.rt)
	lim := &LimitMiddleware{Limits: limits, Mov: g}
	lim.Inject(g)
	return g, lim
}

// RT implements generichttp.HTTPer
func (g *MotorGroup) RT() generichttp.RouteTable { return g.rt }

// Axes implements Lister
func (g *MotorGroup) Axes() []string { return g.B.MotorNames() }

// GetPos implements Mover
func (g *MotorGroup) GetPos(ctx context.Context, axis string) (float64, error) {
	m, err := g.B.Motor(axis)
	if err != nil {
		return 0, err
	}
	return m.Position(ctx)
}

// MoveAbs implements Mover
func (g *MotorGroup) MoveAbs(ctx context.Context, axis string, pos float64) error {
	m, err := g.B.Motor(axis)
	if err != nil {
		return err
	}
	return m.Move(ctx, pos)
}

// MoveRel implements Mover
func (g *MotorGroup) MoveRel(ctx context.Context, axis string, delta float64) error {
	m, err := g.B.Motor(axis)
	if err != nil {
		return err
	}
	return m.MoveRel(ctx, delta)
}

// Home implements Mover
func (g *MotorGroup) Home(ctx context.Context, axis string) error {
	m, err := g.B.Motor(axis)
	if err != nil {
		return err
	}
	return m.Home(ctx)
}

// Stop implements Stopper
func (g *MotorGroup) Stop(ctx context.Context, axis string) error {
	m, err := g.B.Motor(axis)
	if err != nil {
		return err
	}
	return m.Stop(ctx)
}

// GetVelocity implements Speeder
func (g *MotorGroup) GetVelocity(ctx context.Context, axis string) (float64, error) {
	m, err := g.B.Motor(axis)
	if err != nil {
		return 0, err
	}
	return m.Velocity(ctx)
}

// SetVelocity implements Speeder
func (g *MotorGroup) SetVelocity(ctx context.Context, axis string, v float64) error {
	m, err := g.B.Motor(axis)
	if err != nil {
		return err
	}
	return m.SetVelocity(ctx, v)
}
