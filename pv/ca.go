package pv

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CANetwork reaches PVs through the EPICS base caget and caput programs
type CANetwork struct {
	// Caget and Caput are the program paths; "caget" and "caput" if empty
	Caget, Caput string

	// Timeout is passed to the tools with -w and bounds each call
	Timeout time.Duration
}

func (c *CANetwork) timeout() time.Duration {
	if c.Timeout <= 0 {
		return time.Second
	}
	return c.Timeout
}

func (c *CANetwork) run(ctx context.Context, prog string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*c.timeout()+time.Second)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, prog, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%w: %s %s: %v %s", ErrNotConnected, prog, strings.Join(args, " "), err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *CANetwork) wait() string {
	return strconv.FormatFloat(c.timeout().Seconds(), 'f', 3, 64)
}

// Get implements Network
func (c *CANetwork) Get(ctx context.Context, name string) (Value, error) {
	prog := c.Caget
	if prog == "" {
		prog = "caget"
	}
	out, err := c.run(ctx, prog, "-t", "-w", c.wait(), name)
	if err != nil {
		return Value{}, err
	}
	return ParseCagetOutput(out), nil
}

// Put implements Network
func (c *CANetwork) Put(ctx context.Context, name string, v Value) error {
	prog := c.Caput
	if prog == "" {
		prog = "caput"
	}
	args := []string{"-t", "-w", c.wait()}
	if v.Kind == KindArray {
		args = append(args, "-a", name, strconv.Itoa(len(v.Array)))
		for _, f := range v.Array {
			args = append(args, strconv.FormatFloat(f, 'g', -1, 64))
		}
	} else {
		if v.Kind == KindLongString {
			args = append(args, "-S")
		}
		args = append(args, name, v.String())
	}
	_, err := c.run(ctx, prog, args...)
	return err
}

// ParseCagetOutput converts the terse output of caget into a Value.  A single
// number is a float, "N v1 ... vN" is an array, anything else a string.
func ParseCagetOutput(out string) Value {
	fields := strings.Fields(out)
	if len(fields) == 1 {
		if f, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return FloatValue(f)
		}
	}
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[0]); err == nil && n == len(fields)-1 {
			arr := make([]float64, 0, n)
			for _, s := range fields[1:] {
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return StringValue(out)
				}
				arr = append(arr, f)
			}
			return Value{Kind: KindArray, Array: arr}
		}
	}
	return StringValue(out)
}
