package register

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a registration run is already in flight;
// registrations are serialized because they share the target site's
// one-account-per-mailbox flow.
var ErrBusy = errors.New("a registration is already in progress")

// FlowError is a registration failure annotated with the state the flow
// was in and a suggested HTTP status.
type FlowError struct {
	State  State
	Status int
	Msg    string
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s (state %s)", e.Msg, e.State)
}

func flowErr(state State, status int, format string, args ...any) *FlowError {
	return &FlowError{State: state, Status: status, Msg: fmt.Sprintf(format, args...)}
}
