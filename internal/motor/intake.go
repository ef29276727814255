package motor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quentinrf/plant-monitor/services/vehicle-service/internal/domain"
)

const (
	MinSpeed = 0
	MaxSpeed = 100
)

// ValidateSpeed checks a commanded speed against the PWM duty range
func ValidateSpeed(speed int) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidSpeed, speed)
	}
	return nil
}

// ParseSpeed parses and validates one line of operator input
func ParseSpeed(line string) (int, error) {
	speed, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", domain.ErrInvalidSpeed, strings.TrimSpace(line))
	}
	if err := ValidateSpeed(speed); err != nil {
		return 0, err
	}
	return speed, nil
}

// PromptSpeed asks for the motor speed on out until in yields a valid
// value. Invalid input is reported and asked for again; it is never fatal.
// It gives up with ctx.Err() when ctx is done, even while in is blocked.
func PromptSpeed(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	// The scanner cannot be interrupted, so a blocked read is left behind
	// when ctx ends first.
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(out, "Enter motor speed (%d-%d): ", MinSpeed, MaxSpeed)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return 0, ctx.Err()
		case err := <-readErr:
			if err != nil {
				return 0, fmt.Errorf("read motor speed: %w", err)
			}
			return 0, fmt.Errorf("read motor speed: %w", io.ErrUnexpectedEOF)
		case line = <-lines:
		}

		speed, err := ParseSpeed(line)
		if err == nil {
			return speed, nil
		}
		if !errors.Is(err, domain.ErrInvalidSpeed) {
			return 0, err
		}
		fmt.Fprintf(out, "Invalid speed: %v\n", err)
	}
}
