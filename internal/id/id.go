// Package id generates prefixed identifiers for stored records.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each record kind.
const (
	PrefixSharedEvent  = "evt"
	PrefixPersonalEdit = "pe"
	PrefixTrip         = "trip"
	PrefixStream       = "sse"
	PrefixNotification = "ntf"
	PrefixToken        = "token"
)

// Generate returns prefix-nanoid, e.g. "evt-V1StGXR8_Z5jdHi6B-myT".
// The nanoid part is 21 URL-safe characters.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// SharedEvent returns a new shared event ID.
func SharedEvent() (string, error) { return Generate(PrefixSharedEvent) }

// PersonalEdit returns a new personal edit ID. The ID carries no
// information about the shared event it may have been copied from.
func PersonalEdit() (string, error) { return Generate(PrefixPersonalEdit) }
