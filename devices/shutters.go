package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

// ErrShutterTimeout is returned when a shutter does not reach the requested state in time
var ErrShutterTimeout = errors.New("timeout waiting for shutter state")

const (
	pssPollFactor = 1.5
	pssPollMin    = 2 * time.Millisecond
	pssPollMax    = 100 * time.Millisecond
)

// shutter state names
const (
	StateOpen    = "open"
	StateClose   = "close"
	StateUnknown = "unknown"
)

// ApsPssShutter is a PSS-controlled shutter with separate open and close
// requests and a status PV
type ApsPssShutter struct {
	Name string

	openSignal, closeSignal pv.Int
	pssState                pv.String

	// OpenValues and ClosedValues are the status strings meaning each state
	OpenValues, ClosedValues []string

	// Timeout bounds Open and Close
	Timeout time.Duration
}

// NewApsPssShutter binds a shutter with request PVs under prefix and a status PV
func NewApsPssShutter(net pv.Network, name, prefix, statePV string) *ApsPssShutter {
	return &ApsPssShutter{
		Name:         name,
		openSignal:   pv.NewInt(net, prefix+":Open"),
		closeSignal:  pv.NewInt(net, prefix+":Close"),
		pssState:     pv.NewString(net, statePV),
		OpenValues:   []string{"1", "OPEN"},
		ClosedValues: []string{"0", "CLOSED"},
		Timeout:      10 * time.Second,
	}
}

// State reports "open", "close", or "unknown"
func (s *ApsPssShutter) State(ctx context.Context) (string, error) {
	v, err := s.pssState.Get(ctx)
	if err != nil {
		return StateUnknown, err
	}
	switch {
	case contains(s.OpenValues, v):
		return StateOpen, nil
	case contains(s.ClosedValues, v):
		return StateClose, nil
	}
	return StateUnknown, nil
}

// Open requests the shutter open and waits for the PSS to agree
func (s *ApsPssShutter) Open(ctx context.Context) error {
	if err := s.openSignal.Put(ctx, 1); err != nil {
		return err
	}
	return s.WaitForState(ctx, s.OpenValues, s.Timeout, pssPollMin)
}

// Close requests the shutter closed and waits for the PSS to agree
func (s *ApsPssShutter) Close(ctx context.Context) error {
	if err := s.closeSignal.Put(ctx, 1); err != nil {
		return err
	}
	return s.WaitForState(ctx, s.ClosedValues, s.Timeout, pssPollMin)
}

// WaitForState polls the PSS status until it is one of targets.  The first
// poll waits pollStart, clamped to [2 ms, 100 ms]; each later poll waits 1.5
// times longer, up to 100 ms.  A timeout of zero waits forever.
func (s *ApsPssShutter) WaitForState(ctx context.Context, targets []string, timeout, pollStart time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}
	pollStart = time.Duration(util.Clamp(float64(pollStart), float64(pssPollMin), float64(pssPollMax)))
	b := &backoff.ExponentialBackOff{
		InitialInterval:     pollStart,
		RandomizationFactor: 0,
		Multiplier:          pssPollFactor,
		MaxInterval:         pssPollMax,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	for {
		v, err := s.pssState.Get(ctx)
		if err != nil {
			return err
		}
		if contains(targets, v) {
			return nil
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: %s did not reach a value in %v within %v", ErrShutterTimeout, s.Name, targets, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Signals implements Device
func (s *ApsPssShutter) Signals() []NamedSignal {
	return []NamedSignal{{s.Name + "_pss_state", s.pssState}}
}

// InOutShutter is a shutter driven by a single binary output, 1 is open
type InOutShutter struct {
	Name string

	control pv.Int

	// Delay is slept after each move, the blades are slower than the PV
	Delay time.Duration
}

// NewInOutShutter binds a binary-output shutter
func NewInOutShutter(net pv.Network, name, prefix string) *InOutShutter {
	return &InOutShutter{Name: name, control: pv.NewInt(net, prefix)}
}

func (s *InOutShutter) move(ctx context.Context, v int) error {
	if err := s.control.Put(ctx, v); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	return nil
}

// Open the shutter
func (s *InOutShutter) Open(ctx context.Context) error { return s.move(ctx, 1) }

// Close the shutter
func (s *InOutShutter) Close(ctx context.Context) error { return s.move(ctx, 0) }

// State reports "open" or "close"
func (s *InOutShutter) State(ctx context.Context) (string, error) {
	v, err := s.control.Get(ctx)
	if err != nil {
		return StateUnknown, err
	}
	if v != 0 {
		return StateOpen, nil
	}
	return StateClose, nil
}

// Signals implements Device
func (s *InOutShutter) Signals() []NamedSignal {
	return []NamedSignal{{s.Name, s.control}}
}

// Shutter is what the HTTP layer and the procedures need from any shutter
type Shutter interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	State(ctx context.Context) (string, error)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
