package idgen

import "github.com/google/uuid"

// Generator produces ticket identifiers.
type Generator interface {
	Generate() string
}

// UUIDGenerator returns random version 4 UUIDs read from crypto/rand.
// It panics if the system entropy source fails.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewRandom()).String()
}
