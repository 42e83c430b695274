// Package process waits for slow process controllers, such as sample
// heaters, to bring a signal to its target.
package process

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned by waits that were asked to fail on timeout
var ErrTimeout = errors.New("process controller timeout")

// Reader reads a process value
type Reader interface {
	Get(ctx context.Context) (float64, error)
}

// ReadWriter reads and writes a process value
type ReadWriter interface {
	Reader
	Put(ctx context.Context, v float64) error
}

// Controller compares Signal to Target
type Controller struct {
	Name      string
	Signal    Reader
	Target    ReadWriter
	Tolerance float64
	Units     string

	// PollInterval is how often Signal is read while waiting
	PollInterval time.Duration

	// ReportInterval is the least time between progress messages
	ReportInterval time.Duration

	Log *zap.Logger
}

// New returns a Controller with the usual poll and report intervals and a
// tolerance of one unit
func New(name string, signal Reader, target ReadWriter, units string, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		Name:           name,
		Signal:         signal,
		Target:         target,
		Tolerance:      1,
		Units:          units,
		PollInterval:   20 * time.Millisecond,
		ReportInterval: 5 * time.Second,
		Log:            log,
	}
}

func (c *Controller) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *Controller) read(ctx context.Context) (signal, target float64, err error) {
	signal, err = c.Signal.Get(ctx)
	if err != nil {
		return
	}
	target, err = c.Target.Get(ctx)
	return
}

// Settled reports whether the signal is within tolerance of the target
func (c *Controller) Settled(ctx context.Context) (bool, error) {
	s, t, err := c.read(ctx)
	if err != nil {
		return false, err
	}
	return math.Abs(s-t) <= c.Tolerance, nil
}

// WaitUntilSettled polls until the controller is settled.  A timeout of zero
// waits forever.  When the timeout expires the shortfall is logged, and
// ErrTimeout is returned only if timeoutFail is set.  The final signal is
// recorded in every case.
func (c *Controller) WaitUntilSettled(ctx context.Context, timeout time.Duration, timeoutFail bool) error {
	t0 := time.Now()
	settled, err := c.Settled(ctx)
	if err != nil {
		return err
	}
	poll := c.PollInterval
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	report := rate.NewLimiter(rate.Every(c.ReportInterval), 1)
	var waitErr error
	for !settled {
		elapsed := time.Since(t0)
		s, t, err := c.read(ctx)
		if err != nil {
			return err
		}
		if timeout > 0 && elapsed > timeout {
			msg := fmt.Sprintf("%s Timeout after %.2fs, target %.2f%s, now %.2f%s",
				c.Name, elapsed.Seconds(), t, c.Units, s, c.Units)
			c.log().Warn(msg)
			if timeoutFail {
				waitErr = fmt.Errorf("%w: %s", ErrTimeout, msg)
			}
			break
		}
		if report.Allow() {
			c.log().Info(fmt.Sprintf("Waiting %.1fs to reach %.2f%s, now %.2f%s",
				elapsed.Seconds(), t, c.Units, s, c.Units))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
		settled, err = c.Settled(ctx)
		if err != nil {
			return err
		}
	}
	if _, err := c.RecordSignal(ctx); err != nil {
		return err
	}
	c.log().Info("process wait finished", zap.String("controller", c.Name),
		zap.Duration("total", time.Since(t0)), zap.Bool("settled", settled))
	return waitErr
}

// SetTarget writes a new target and, if wait is set, waits for the signal
func (c *Controller) SetTarget(ctx context.Context, target float64, wait bool, timeout time.Duration, timeoutFail bool) error {
	if err := c.Target.Put(ctx, target); err != nil {
		return err
	}
	c.log().Info(fmt.Sprintf("Set %s to %.2f%s", c.Name, target, c.Units))
	if !wait {
		return nil
	}
	return c.WaitUntilSettled(ctx, timeout, timeoutFail)
}

// RecordSignal logs the current signal and returns the message
func (c *Controller) RecordSignal(ctx context.Context) (string, error) {
	s, err := c.Signal.Get(ctx)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("%s signal: %.2f%s", c.Name, s, c.Units)
	c.log().Info(msg)
	return msg, nil
}

// Temperature returns the signal, for HTTP thermal routes
func (c *Controller) Temperature(ctx context.Context) (float64, error) {
	return c.Signal.Get(ctx)
}

// Setpoint returns the target
func (c *Controller) Setpoint(ctx context.Context) (float64, error) {
	return c.Target.Get(ctx)
}

// SetSetpoint changes the target without waiting
func (c *Controller) SetSetpoint(ctx context.Context, v float64) error {
	return c.SetTarget(ctx, v, false, 0, false)
}
