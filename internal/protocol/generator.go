// Package protocol issues the human-shareable tracking identifiers handed to
// patients for bookings (AGD...) and authorization requests (PROC...).
package protocol

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	BookingPrefix   = "AGD"
	ProcedurePrefix = "PROC"
)

// Generator produces identifiers of the form
//
//	<prefix><yyyymmddhhmmss>-<node>-<seq>
//
// seq is a process-wide atomic counter, so two calls on one Generator never
// return the same value. node is derived from a random uuid at construction
// and separates generators living in different processes.
type Generator struct {
	prefix string
	node   string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewGenerator returns a generator for the given prefix.
func NewGenerator(prefix string) *Generator {
	return NewGeneratorWithClock(prefix, time.Now)
}

// NewGeneratorWithClock is NewGenerator with an injected clock.
func NewGeneratorWithClock(prefix string, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	node := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return &Generator{
		prefix: prefix,
		node:   node,
		now:    now,
	}
}

// Next returns a fresh protocol. Safe for concurrent use.
func (g *Generator) Next() string {
	n := g.seq.Add(1)
	ts := g.now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s%s-%s-%06d", g.prefix, ts, g.node, n)
}

// Prefix returns the generator's prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}
