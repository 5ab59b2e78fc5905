package profile

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLen bounds a profile name; it becomes a directory and socket name.
const MaxNameLen = 64

var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// InvalidNameError reports a profile name that cannot be used on disk.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("profile %q: %s (use lowercase letters, digits, '-' or '_')", e.Name, e.Reason)
}

// ValidateName reports whether name can be used as a profile directory.
func ValidateName(name string) error {
	if namePattern.MatchString(name) {
		return nil
	}
	reason := "invalid name"
	switch {
	case name == "":
		reason = "name is empty"
	case len(name) > MaxNameLen:
		reason = fmt.Sprintf("name is longer than %d bytes", MaxNameLen)
	default:
		if i := strings.IndexFunc(name, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
		}); i >= 0 {
			reason = fmt.Sprintf("character %q not allowed", []rune(name[i:])[0])
		}
	}
	return &InvalidNameError{Name: name, Reason: reason}
}
