package link

import "fmt"

// Role is the logical peer a link serves. The node holds at most one link
// per role.
type Role string

const (
	// RoleSensor is the remote magnetometer/ultrasonic sensor board.
	RoleSensor Role = "sensor"

	// RoleMobile is a registered user's phone.
	RoleMobile Role = "mobile"
)

// Roles returns every role.
func Roles() []Role {
	return []Role{RoleSensor, RoleMobile}
}

// ParseRole converts s to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSensor, RoleMobile:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) String() string {
	return string(r)
}
