// Package id provides centralized ID generation for the pipeline runtime.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: IDs order by creation time
//   - Prefixed types: type-specific prefixes for debugging (buf_*, grp_*, proc_*)
//   - Type safety: separate types prevent ID misuse across components
//
// Design Principles:
//   - ULIDs only: single ID format across the runtime
//   - Debuggable: prefixes make logs and stats readable
//   - One namespace per component kind: no cross-component collisions
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BufferID identifies a sequenced buffer
type BufferID string

// GroupID identifies a consumer group
type GroupID string

// ProcessorID identifies a processor
type ProcessorID string

// ID prefixes for debugging and type identification
const (
	BufferPrefix    = "buf"
	GroupPrefix     = "grp"
	ProcessorPrefix = "proc"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewBufferID generates a new buffer ID
func NewBufferID() BufferID {
	return BufferID(Default().GenerateWithPrefix(BufferPrefix))
}

// NewGroupID generates a new group ID
func NewGroupID() GroupID {
	return GroupID(Default().GenerateWithPrefix(GroupPrefix))
}

// NewProcessorID generates a new processor ID
func NewProcessorID() ProcessorID {
	return ProcessorID(Default().GenerateWithPrefix(ProcessorPrefix))
}

func (id BufferID) String() string    { return string(id) }
func (id GroupID) String() string     { return string(id) }
func (id ProcessorID) String() string { return string(id) }

// IsValid checks if an ID string is a valid raw ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
