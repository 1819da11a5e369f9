package domain

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// ConnectionIDPrefix marks relay connection identifiers.
const ConnectionIDPrefix = "rrc-"

// MaxGroupNameRunes bounds group names so they stay usable as store keys
// and channel names.
const MaxGroupNameRunes = 256

// NewConnectionID mints a connection identifier for an accepted connection.
// Format: rrc-{ulid_lowercase}, 30 characters total. ULIDs embed the accept
// time, which keeps ids unique across the fleet without coordination.
func NewConnectionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return ConnectionIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidConnectionID reports whether id was produced by NewConnectionID.
func IsValidConnectionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, ConnectionIDPrefix) {
		return false
	}
	if len(id) != len(ConnectionIDPrefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(ConnectionIDPrefix):]))
	return err == nil
}

// NormalizeGroup trims a group name and validates it.
//
// Group names double as shared channel names, so they must be non-empty,
// valid UTF-8, free of control characters and at most MaxGroupNameRunes long.
func NormalizeGroup(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidGroup.WithDetails("group name is required")
	}
	if !utf8.ValidString(name) {
		return "", ErrInvalidGroup.WithDetails("group name must be valid UTF-8")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameRunes {
		return "", ErrInvalidGroup.WithDetails("group name is too long")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", ErrInvalidGroup.WithDetails("group name contains control characters")
		}
	}
	return name, nil
}
