package domain

import "errors"

var (
	// ErrUnknownPin indicates a pin operation addressed a pin the driver cannot resolve
	ErrUnknownPin = errors.New("unknown pin")

	// ErrPinConflict indicates two roles were mapped to the same pin
	ErrPinConflict = errors.New("pin assigned to more than one role")

	// ErrChargeTimeout indicates the light sensor capacitor never recharged
	ErrChargeTimeout = errors.New("capacitor charge count exceeded limit")

	// ErrNoEcho indicates the echo line never rose after a trigger pulse
	ErrNoEcho = errors.New("no echo received")

	// ErrEchoStuck indicates the echo line rose but never fell
	ErrEchoStuck = errors.New("echo pulse exceeded valid duration")

	// ErrInvalidSpeed indicates a motor speed outside [0, 100]
	ErrInvalidSpeed = errors.New("motor speed must be between 0 and 100")

	// ErrWorkerLaunch indicates a worker failed to start during session launch
	ErrWorkerLaunch = errors.New("worker launch failed")

	// ErrInvalidConfig indicates configuration failed validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsTimingTimeout reports whether err is one of the bounded-wait errors
// raised by the sensor timing loops. These are not fatal to a session.
func IsTimingTimeout(err error) bool {
	return errors.Is(err, ErrChargeTimeout) ||
		errors.Is(err, ErrNoEcho) ||
		errors.Is(err, ErrEchoStuck)
}
