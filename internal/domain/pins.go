package domain

import (
	"fmt"
	"sort"
)

// Pin is a BCM GPIO number
type Pin int

// String renders the pin the way periph names it
func (p Pin) String() string {
	return fmt.Sprintf("GPIO%d", int(p))
}

// Level is a digital logic level
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Mode is the direction a pin is configured for
type Mode int

const (
	ModeInput Mode = iota
	ModeOutput
)

func (m Mode) String() string {
	if m == ModeOutput {
		return "output"
	}
	return "input"
}

// Pull selects the internal pull resistor of an input pin
type Pull int

const (
	PullNone Pull = iota
	PullUp
)

// Role names what a pin is wired to
type Role string

const (
	RoleButton      Role = "button"
	RoleLightSensor Role = "light-sensor"
	RoleTrigger     Role = "trigger"
	RoleEcho        Role = "echo"
	RoleMotorEnable Role = "motor-enable"
	RoleMotorDirA   Role = "motor-direction-a"
	RoleMotorDirB   Role = "motor-direction-b"
)

// PinMap is the fixed wiring of the vehicle. It is not modified after setup.
type PinMap struct {
	Button      Pin `yaml:"button"`
	LightSensor Pin `yaml:"light_sensor"`
	Trigger     Pin `yaml:"trigger"`
	Echo        Pin `yaml:"echo"`
	MotorEnable Pin `yaml:"motor_enable"`
	MotorDirA   Pin `yaml:"motor_direction_a"`
	MotorDirB   Pin `yaml:"motor_direction_b"`
}

// DefaultPinMap returns the reference wiring
func DefaultPinMap() PinMap {
	return PinMap{
		Button:      16,
		LightSensor: 4,
		Trigger:     23,
		Echo:        24,
		MotorEnable: 25,
		MotorDirA:   17,
		MotorDirB:   27,
	}
}

// Roles returns the role assignment in use. Motor roles are only
// included when withMotor is set.
func (m PinMap) Roles(withMotor bool) map[Role]Pin {
	roles := map[Role]Pin{
		RoleButton:      m.Button,
		RoleLightSensor: m.LightSensor,
		RoleTrigger:     m.Trigger,
		RoleEcho:        m.Echo,
	}
	if withMotor {
		roles[RoleMotorEnable] = m.MotorEnable
		roles[RoleMotorDirA] = m.MotorDirA
		roles[RoleMotorDirB] = m.MotorDirB
	}
	return roles
}

// Validate checks that every role has a pin of its own
func (m PinMap) Validate(withMotor bool) error {
	roles := m.Roles(withMotor)

	names := make([]string, 0, len(roles))
	for r := range roles {
		names = append(names, string(r))
	}
	sort.Strings(names)

	seen := make(map[Pin]Role, len(roles))
	for _, name := range names {
		r := Role(name)
		p := roles[r]
		if p < 0 {
			return fmt.Errorf("%w: %s has negative pin %d", ErrInvalidConfig, r, p)
		}
		if other, ok := seen[p]; ok {
			return fmt.Errorf("%w: %s and %s both use %s", ErrPinConflict, other, r, p)
		}
		seen[p] = r
	}
	return nil
}
