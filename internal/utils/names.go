package utils

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName is returned for identity names that cannot be used as a gallery directory.
var ErrInvalidName = errors.New("invalid identity name")

// NormalizeIdentityName turns operator input into the directory name of an identity.
// The name is trimmed and NFC-normalized so that "José" typed with a combining accent
// and with a precomposed é land in the same directory.
func NormalizeIdentityName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidName, name)
		}
	}
	return name, nil
}
