// Package idgen generates short, URL-safe identifiers for scheduler cycles
// and export runs.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	CyclePrefix  = "cy-"
	ExportPrefix = "ex-"
)

// Alphabet is the character set of the random part.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
var Length = 10

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Cycle returns a new cycle id. Log correlation must not stop the loop, so
// a generator failure yields the bare prefix.
func Cycle() string {
	id, err := New(CyclePrefix)
	if err != nil {
		return CyclePrefix
	}
	return id
}
