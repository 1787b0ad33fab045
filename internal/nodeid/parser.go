// internal/nodeid/parser.go
package nodeid

import (
	"errors"
	"fmt"
	"unicode"
)

// ErrInvalid is returned by Parse for identifiers the engine cannot accept.
var ErrInvalid = errors.New("invalid node id")

// Parse validates a raw identifier received from the host.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: identifier cannot be empty", ErrInvalid)
	}
	for i, r := range raw {
		if r == unicode.ReplacementChar {
			return "", fmt.Errorf("%w: invalid utf-8 at offset %d", ErrInvalid, i)
		}
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character at offset %d", ErrInvalid, i)
		}
	}
	return ID(raw), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static identifiers.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}
