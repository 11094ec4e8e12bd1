// Package kilnerr defines the sentinel error kinds shared across the
// control core so that the command surface and the control loop branch
// on error identity instead of string matching.
package kilnerr

import "errors"

var (
	// ErrNoSuchProfile is returned when start() names a profile that
	// does not exist in the configured profile directory.
	ErrNoSuchProfile = errors.New("no_such_profile")

	// ErrIllegalState is returned when a command is not valid for the
	// oven's current lifecycle state (e.g. pause() while IDLE).
	ErrIllegalState = errors.New("illegal_in_current_state")

	// ErrInvalidProfile is returned when a profile fails load-time
	// validation (§4.2 of the control core spec).
	ErrInvalidProfile = errors.New("invalid_profile")

	// ErrLostSensor marks a persistent sensor fault (STALE/SHORT/OPEN
	// beyond the configured fault policy).
	ErrLostSensor = errors.New("lost_connection_to_thermocouple")

	// ErrOverTemperature marks a measured temperature above the
	// configured emergency ceiling.
	ErrOverTemperature = errors.New("over_temperature")
)
