package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// State is the controller's lifecycle state.
type State uint32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Trigger names the host event asking the controller to start.
type Trigger string

const (
	// TriggerManual is an explicit user request. It always starts.
	TriggerManual Trigger = "manual"
	// TriggerBoot fires once the host has finished booting.
	TriggerBoot Trigger = "boot"
	// TriggerPackageReplaced fires after the daemon was upgraded in place.
	TriggerPackageReplaced Trigger = "package_replaced"
)

// ParseTrigger maps a host-supplied string onto a Trigger. The empty string
// is TriggerManual.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TriggerManual, nil
	case TriggerManual, TriggerBoot, TriggerPackageReplaced:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger %q", s)
	}
}

// restoresState reports whether t should only start a previously enabled
// service.
func (t Trigger) restoresState() bool {
	return t == TriggerBoot || t == TriggerPackageReplaced
}

// ErrNoEstablisher is wrapped by StartError when the controller was built
// without a way to create the virtual interface.
var ErrNoEstablisher = errors.New("lifecycle: no tun establisher configured")

// StartError reports why interception could not start. The controller is
// Stopped whenever a StartError is returned.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return "start interception: " + e.Err.Error()
}

func (e *StartError) Unwrap() error { return e.Err }
