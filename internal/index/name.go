package index

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidName = errors.New("invalid dataset name: use letters, digits and underscores, at most 128 characters, not starting with a digit")

var namePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,127}$`)

// CleanName normalizes a dataset name, falling back to defaultName when name
// is blank. The result is lower case and safe to use as an identifier.
func CleanName(name, defaultName string) (string, error) {
	effective := strings.TrimSpace(name)
	if effective == "" {
		effective = strings.TrimSpace(defaultName)
	}
	if effective == "" {
		return "", ErrInvalidName
	}

	effective = strings.ToLower(effective)
	if !namePattern.MatchString(effective) {
		return "", ErrInvalidName
	}
	return effective, nil
}
