// Package uuid provides UUID v4 generation and validation utilities.
// Action ids and provisional entity ids are UUID v4 strings.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewProvisional generates a client-side provisional entity id. It is a
// plain UUID v4 with a "tmp-" prefix so server-assigned and provisional
// ids are distinguishable in logs and payloads.
func NewProvisional() string {
	return "tmp-" + uuid.New().String()
}

// IsProvisional reports whether the id is a client-generated
// provisional id awaiting server reconciliation.
func IsProvisional(id string) bool {
	return len(id) > 4 && id[:4] == "tmp-"
}

// IsValid checks if a string is a valid UUID v4.
// Enforces strict format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}
