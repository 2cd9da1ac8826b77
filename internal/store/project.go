package store

import (
	"fmt"
	"strings"
)

// MaxProjectLen is the longest project name in bytes.
const MaxProjectLen = 30

// ValidateProject checks that name can be used as both a key field and a
// directory name under the data root.
func ValidateProject(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidProject)
	case len(name) > MaxProjectLen:
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidProject, name, MaxProjectLen)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with '.'", ErrInvalidProject, name)
	case strings.ContainsAny(name, "/\x00\x01"):
		return fmt.Errorf("%w: %q contains '/', NUL or 0x01", ErrInvalidProject, name)
	}

	return nil
}
