// Package linkam talks to Linkam CI94 and T95 temperature controllers
// directly over RS-232, for stages not served by an EPICS IOC.
//
// The controllers speak a terse ASCII protocol terminated by carriage
// returns.  Only the T (status) command produces a response.
package linkam

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/APS-USAXS/ipython-usaxs/comm"
)

var (
	// ErrBadResponse is returned when a status reply is malformed
	ErrBadResponse = errors.New("malformed response from Linkam controller")

	// ErrOutOfRange is returned when a rate or limit cannot be encoded
	ErrOutOfRange = errors.New("value out of range for Linkam controller")
)

const cr = '\r'

// Status byte values
const (
	Stopped        byte = 0x01
	Heating        byte = 0x10
	Cooling        byte = 0x20
	HoldingLimit   byte = 0x30
	HoldingTime    byte = 0x40
	HoldingCurrent byte = 0x50
)

var statusNames = map[byte]string{
	Stopped:        "stopped",
	Heating:        "heating",
	Cooling:        "cooling",
	HoldingLimit:   "holding at limit",
	HoldingTime:    "holding limit time",
	HoldingCurrent: "holding current temperature",
}

// Status is a decoded reply to the T command
type Status struct {
	State       byte
	Error       byte
	Pump        byte
	General     []byte  // general status, nil when the controller sends none
	Temperature float64 // deg C
}

// StateName describes State in words
func (s Status) StateName() string {
	if n, ok := statusNames[s.State]; ok {
		return n
	}
	return fmt.Sprintf("unknown (0x%02x)", s.State)
}

// ParseStatus decodes a T reply: status, error, and pump bytes, any general
// status bytes, then the temperature as four hex digits of signed tenths of
// a degree.  The CI94 sends no general status; later controllers send some.
func ParseStatus(resp []byte) (Status, error) {
	if len(resp) > 0 && resp[len(resp)-1] == cr {
		resp = resp[:len(resp)-1]
	}
	if len(resp) < 7 {
		return Status{}, fmt.Errorf("%w: %q", ErrBadResponse, resp)
	}
	tt := resp[len(resp)-4:]
	raw, err := strconv.ParseUint(string(tt), 16, 16)
	if err != nil {
		return Status{}, fmt.Errorf("%w: temperature %q", ErrBadResponse, tt)
	}
	st := Status{
		State:       resp[0],
		Error:       resp[1],
		Pump:        resp[2],
		Temperature: float64(int16(uint16(raw))) / 10,
	}
	if gs := resp[3 : len(resp)-4]; len(gs) > 0 {
		st.General = append([]byte(nil), gs...)
	}
	return st, nil
}

// EncodeRate builds the R1 command for a rate in degrees per minute
func EncodeRate(degPerMin float64) (string, error) {
	v := math.Round(degPerMin * 100)
	if v < 0 || v > 9999 {
		return "", fmt.Errorf("%w: rate %v C/min", ErrOutOfRange, degPerMin)
	}
	return "R1" + strconv.Itoa(int(v)), nil
}

// EncodeLimit builds the L1 command for a limit temperature in degrees
func EncodeLimit(degC float64) (string, error) {
	v := math.Round(degC * 10)
	if v < -1960 || v > 9999 {
		return "", fmt.Errorf("%w: limit %v C", ErrOutOfRange, degC)
	}
	return "L1" + strconv.Itoa(int(v)), nil
}

// Controller is a Linkam controller on a serial port
type Controller struct {
	pool *comm.Pool

	mu       sync.Mutex
	setpoint float64
}

// NewController returns a controller on the named serial port
func NewController(port string) *Controller {
	conf := &serial.Config{
		Name:        port,
		Baud:        19200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: time.Second,
	}
	return NewWithPool(comm.NewPool(1, 30*time.Second, comm.SerialConnMaker(conf)))
}

// NewWithPool returns a controller using connections from pool
func NewWithPool(pool *comm.Pool) *Controller {
	return &Controller{pool: pool}
}

func (c *Controller) send(ctx context.Context, cmd string, reply bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.pool.Get()
	if err != nil {
		return nil, err
	}
	term := comm.NewTerminator(conn, []byte{cr}, cr)
	if _, err = term.Write([]byte(cmd)); err != nil {
		c.pool.ReturnWithError(conn, err)
		return nil, err
	}
	if !reply {
		c.pool.Put(conn)
		return nil, nil
	}
	resp, err := term.ReadLine()
	c.pool.ReturnWithError(conn, err)
	return resp, err
}

// Raw sends cmd and returns the reply line
func (c *Controller) Raw(ctx context.Context, cmd string) (string, error) {
	resp, err := c.send(ctx, cmd, true)
	return string(resp), err
}

// Status queries the controller
func (c *Controller) Status(ctx context.Context) (Status, error) {
	resp, err := c.send(ctx, "T", true)
	if err != nil {
		return Status{}, err
	}
	return ParseStatus(resp)
}

// Temperature returns the stage temperature in degrees
func (c *Controller) Temperature(ctx context.Context) (float64, error) {
	s, err := c.Status(ctx)
	return s.Temperature, err
}

// SetSetpoint sets the limit temperature
func (c *Controller) SetSetpoint(ctx context.Context, degC float64) error {
	cmd, err := EncodeLimit(degC)
	if err != nil {
		return err
	}
	if _, err := c.send(ctx, cmd, false); err != nil {
		return err
	}
	c.mu.Lock()
	c.setpoint = degC
	c.mu.Unlock()
	return nil
}

// Setpoint returns the last limit sent; the controller cannot report it
func (c *Controller) Setpoint(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setpoint, nil
}

// SetRate sets the ramp rate in degrees per minute
func (c *Controller) SetRate(ctx context.Context, degPerMin float64) error {
	cmd, err := EncodeRate(degPerMin)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, cmd, false)
	return err
}

// Start begins ramping to the limit
func (c *Controller) Start(ctx context.Context) error {
	_, err := c.send(ctx, "S", false)
	return err
}

// Stop ends temperature control
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.send(ctx, "E", false)
	return err
}

// Hold freezes the current temperature
func (c *Controller) Hold(ctx context.Context) error {
	_, err := c.send(ctx, "O", false)
	return err
}

// Signal reads the stage temperature
type Signal struct{ c *Controller }

// Get implements process.Reader
func (s Signal) Get(ctx context.Context) (float64, error) { return s.c.Temperature(ctx) }

// Target reads and writes the limit
type Target struct{ c *Controller }

// Get implements process.ReadWriter
func (t Target) Get(ctx context.Context) (float64, error) { return t.c.Setpoint(ctx) }

// Put sets the limit and starts the ramp
func (t Target) Put(ctx context.Context, v float64) error {
	if err := t.c.SetSetpoint(ctx, v); err != nil {
		return err
	}
	return t.c.Start(ctx)
}

// Signal returns the temperature as a process signal
func (c *Controller) Signal() Signal { return Signal{c} }

// Target returns the limit as a process target
func (c *Controller) Target() Target { return Target{c} }
