//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives a relay from an actual GPIO output line.
type RealRelay struct {
	line *gpiocdev.Line
}

// NewRealRelay requests pin on chip as an output, initially inactive.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("fan-controller"))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %s/%d: %w", chip, pin, err)
	}
	return &RealRelay{line: line}, nil
}

// Set drives the line: 1 when on, 0 when off.
func (r *RealRelay) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay pin: %w", err)
	}
	return nil
}

// Close switches the relay off and returns the line to an input with
// pull-down, matching Pi boot defaults, before releasing it.
func (r *RealRelay) Close() error {
	if r.line == nil {
		return nil
	}

	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch relay off: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
