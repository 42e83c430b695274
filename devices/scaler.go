package devices

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrNoChannel is returned when no scaler channel carries the requested name
var ErrNoChannel = errors.New("no scaler channel with that name")

// ScalerChannels is how many channels the scaler record has
const ScalerChannels = 32

// Scaler is an EPICS scaler record with named channels
type Scaler struct {
	Name   string
	Prefix string

	PresetTime pv.Float
	Delay      pv.Float
	count      pv.Int

	names  [ScalerChannels]pv.String
	counts [ScalerChannels]pv.Float

	PollInterval time.Duration
}

// NewScaler binds a scaler record, e.g. 9idcLAX:vsc:c0
func NewScaler(net pv.Network, name, prefix string) *Scaler {
	s := &Scaler{
		Name:         name,
		Prefix:       prefix,
		PresetTime:   pv.NewFloat(net, prefix+".TP"),
		Delay:        pv.NewFloat(net, prefix+".DLY"),
		count:        pv.NewInt(net, prefix+".CNT"),
		PollInterval: DefaultPollInterval,
	}
	for i := 0; i < ScalerChannels; i++ {
		n := strconv.Itoa(i + 1)
		s.names[i] = pv.NewString(net, prefix+".NM"+n)
		s.counts[i] = pv.NewFloat(net, prefix+".S"+n)
	}
	return s
}

// Channel is one named scaler input
type Channel struct {
	Index int // 1-based, the record's S field number
	Name  string
	pv.Float
}

// Channel finds the channel whose NMn field equals name
func (s *Scaler) Channel(ctx context.Context, name string) (Channel, error) {
	for i := range s.names {
		n, err := s.names[i].Get(ctx)
		if err != nil {
			continue
		}
		if n == name {
			return Channel{Index: i + 1, Name: name, Float: s.counts[i]}, nil
		}
	}
	return Channel{}, fmt.Errorf("%w: %s on %s", ErrNoChannel, name, s.Prefix)
}

// Count starts counting for the preset time and waits for the count to end
func (s *Scaler) Count(ctx context.Context) error {
	if err := s.count.Put(ctx, 1); err != nil {
		return err
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		c, err := s.count.Get(ctx)
		if err != nil {
			return err
		}
		if c == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Signals implements Device, listing the channels that have names
func (s *Scaler) Signals() []NamedSignal {
	out := []NamedSignal{
		{s.Name + "_preset_time", s.PresetTime},
		{s.Name + "_delay", s.Delay},
	}
	for i := range s.counts {
		out = append(out, NamedSignal{fmt.Sprintf("%s_chan%02d", s.Name, i+1), s.counts[i]})
	}
	return out
}
