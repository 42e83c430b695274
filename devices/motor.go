package devices

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// DefaultPollInterval is how often a Motor checks DMOV while waiting for a move
const DefaultPollInterval = 50 * time.Millisecond

// DefaultMoveGrace is how long Wait lets a newly commanded motor record take
// to drop DMOV
const DefaultMoveGrace = 200 * time.Millisecond

// Motor is an EPICS motor record
type Motor struct {
	// Name is the short name the motor is known by, e.g. "m_stage.r"
	Name string

	// Prefix is the record name, e.g. 9idcLAX:aero:c3:m1
	Prefix string

	Labels []string

	PollInterval time.Duration

	// MoveGrace bounds how long Wait, after Start or Home, waits for DMOV
	// to go to 0.  A plain caput returns before the record has processed,
	// so DMOV can still read 1 from before the move.
	MoveGrace time.Duration

	val, rbv, hlm, llm, velo, rdbd pv.Float
	dmov                           pv.Bool
	stop, homf                     pv.Int

	mu      sync.Mutex
	pending *commanded
}

// commanded is a move Wait has not yet seen the record begin
type commanded struct {
	target    float64
	hasTarget bool
	deadline  time.Time
}

// NewMotor binds a motor record to a network
func NewMotor(net pv.Network, name, prefix string, labels ...string) *Motor {
	m := &Motor{Name: name, Labels: labels, PollInterval: DefaultPollInterval, MoveGrace: DefaultMoveGrace}
	m.bind(net, prefix)
	return m
}

func (m *Motor) bind(net pv.Network, prefix string) {
	m.Prefix = prefix
	m.val = pv.NewFloat(net, prefix+".VAL")
	m.rbv = pv.NewFloat(net, prefix+".RBV")
	m.hlm = pv.NewFloat(net, prefix+".HLM")
	m.llm = pv.NewFloat(net, prefix+".LLM")
	m.velo = pv.NewFloat(net, prefix+".VELO")
	m.rdbd = pv.NewFloat(net, prefix+".RDBD")
	m.dmov = pv.NewBool(net, prefix+".DMOV")
	m.stop = pv.NewInt(net, prefix+".STOP")
	m.homf = pv.NewInt(net, prefix+".HOMF")
}

// Position returns the readback position
func (m *Motor) Position(ctx context.Context) (float64, error) {
	return m.rbv.Get(ctx)
}

// Setpoint returns the commanded position
func (m *Motor) Setpoint(ctx context.Context) (float64, error) {
	return m.val.Get(ctx)
}

// Start commands a move without waiting for it to finish
func (m *Motor) Start(ctx context.Context, pos float64) error {
	if err := m.val.Put(ctx, pos); err != nil {
		return fmt.Errorf("moving %s: %w", m.Name, err)
	}
	m.arm(pos, true)
	return nil
}

func (m *Motor) arm(target float64, hasTarget bool) {
	var c *commanded
	if m.MoveGrace > 0 {
		c = &commanded{target: target, hasTarget: hasTarget, deadline: time.Now().Add(m.MoveGrace)}
	}
	m.mu.Lock()
	m.pending = c
	m.mu.Unlock()
}

func (m *Motor) takePending() *commanded {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.pending
	m.pending = nil
	return c
}

// arrived is true when the readback is within the retry deadband of c's
// target, which is how a move to the current position looks
func (m *Motor) arrived(ctx context.Context, c *commanded) bool {
	if !c.hasTarget {
		return false
	}
	rbv, err := m.rbv.Get(ctx)
	if err != nil {
		return false
	}
	tol, _ := m.rdbd.Get(ctx)
	return math.Abs(rbv-c.target) <= math.Abs(tol)
}

// Wait blocks until the motor reports done moving.  After Start or Home it
// first waits, up to MoveGrace, for the record to report the new move.
func (m *Motor) Wait(ctx context.Context) error {
	poll := m.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	c := m.takePending()
	for {
		done, err := m.dmov.Get(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", m.Name, err)
		}
		switch {
		case !done:
			c = nil
		case c == nil || m.arrived(ctx, c) || !time.Now().Before(c.deadline):
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Move moves to pos and waits for the move to finish
func (m *Motor) Move(ctx context.Context, pos float64) error {
	if err := m.Start(ctx, pos); err != nil {
		return err
	}
	return m.Wait(ctx)
}

// MoveRel moves by delta from the current readback
func (m *Motor) MoveRel(ctx context.Context, delta float64) error {
	pos, err := m.Position(ctx)
	if err != nil {
		return err
	}
	return m.Move(ctx, pos+delta)
}

// Moving is true while the motor record is not done moving
func (m *Motor) Moving(ctx context.Context) (bool, error) {
	done, err := m.dmov.Get(ctx)
	return !done, err
}

// Stop aborts any motion
func (m *Motor) Stop(ctx context.Context) error {
	return m.stop.Put(ctx, 1)
}

// Home starts a forward home search and waits for it to finish
func (m *Motor) Home(ctx context.Context) error {
	if err := m.homf.Put(ctx, 1); err != nil {
		return err
	}
	m.arm(0, false)
	return m.Wait(ctx)
}

// Velocity returns the record's speed, in EGU per second
func (m *Motor) Velocity(ctx context.Context) (float64, error) {
	return m.velo.Get(ctx)
}

// SetVelocity sets the record's speed
func (m *Motor) SetVelocity(ctx context.Context, v float64) error {
	return m.velo.Put(ctx, v)
}

// GetLim returns the high user limit when flag > 0 and the low one otherwise
func (m *Motor) GetLim(ctx context.Context, flag int) (float64, error) {
	if flag > 0 {
		return m.hlm.Get(ctx)
	}
	return m.llm.Get(ctx)
}

// SetLim sets the user limits, the low limit to the lesser of the two values
// and the high to the greater.  Nothing is done if the motor is moving.
func (m *Motor) SetLim(ctx context.Context, low, high float64) error {
	moving, err := m.Moving(ctx)
	if err != nil {
		return err
	}
	if moving {
		return nil
	}
	if low > high {
		low, high = high, low
	}
	if err := m.llm.Put(ctx, low); err != nil {
		return err
	}
	return m.hlm.Put(ctx, high)
}

// Signals lists the PVs of the record, for DeviceRead
func (m *Motor) Signals() []NamedSignal {
	return []NamedSignal{
		{m.Name, m.rbv},
		{m.Name + "_user_setpoint", m.val},
		{m.Name + "_done_moving", m.dmov},
		{m.Name + "_high_limit", m.hlm},
		{m.Name + "_low_limit", m.llm},
		{m.Name + "_velocity", m.velo},
	}
}

// Positioner is anything that can be sent somewhere and waited on
type Positioner interface {
	Start(ctx context.Context, pos float64) error
	Wait(ctx context.Context) error
}

// Target pairs a Positioner with where it should go
type Target struct {
	P   Positioner
	Pos float64
}

// MoveMotors starts every move, then waits for all of them to finish
func MoveMotors(ctx context.Context, targets ...Target) error {
	for _, t := range targets {
		if err := t.P.Start(ctx, t.Pos); err != nil {
			return err
		}
	}
	for _, t := range targets {
		if err := t.P.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SignalPositioner moves a plain PV, e.g. a slit size calc record.  It is
// done as soon as the put returns.
type SignalPositioner struct {
	pv.Float
}

// Start writes pos
func (s SignalPositioner) Start(ctx context.Context, pos float64) error {
	return s.Put(ctx, pos)
}

// Wait returns immediately
func (s SignalPositioner) Wait(ctx context.Context) error { return ctx.Err() }
