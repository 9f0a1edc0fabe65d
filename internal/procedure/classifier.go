// Package procedure triages procedure-authorization requests into tiers with
// fixed SLAs and issues PROC tracking protocols.
package procedure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/protocol"
)

var (
	ErrUnclassified = errors.New("procedure not recognized")
	ErrNotFound     = errors.New("authorization not found")
)

type Status string

const (
	StatusAuthorized  Status = "authorized"
	StatusUnderReview Status = "under_review"
)

// AuthorizationRequest is issued once per successful classification and never
// mutated afterwards.
type AuthorizationRequest struct {
	Procedure    string    `json:"procedure"`
	MatchedEntry string    `json:"matched_entry"`
	Tier         Tier      `json:"tier"`
	SLADays      int       `json:"sla_days"`
	Protocol     string    `json:"protocol"`
	Status       Status    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`
	DueDate      time.Time `json:"due_date"`
}

type Classifier struct {
	catalog   []compiledEntry
	protocols *protocol.Generator
	log       AuthorizationLog
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

type Option func(*Classifier)

// WithCatalog replaces the default catalog. Order is preserved and the first
// matching entry wins.
func WithCatalog(entries []Entry) Option {
	return func(c *Classifier) { c.catalog = compile(entries) }
}

func WithLog(log AuthorizationLog) Option {
	return func(c *Classifier) {
		if log != nil {
			c.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithProtocolGenerator(g *protocol.Generator) Option {
	return func(c *Classifier) {
		if g != nil {
			c.protocols = g
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		catalog:   compile(DefaultCatalog),
		protocols: protocol.NewGenerator(protocol.ProcedurePrefix),
		log:       NewMemoryLog(),
		now:       time.Now,
		loc:       time.UTC,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves the tier of procedureName, issues a protocol and records
// the request. Unknown procedures yield ErrUnclassified.
func (c *Classifier) Classify(ctx context.Context, procedureName string) (*AuthorizationRequest, error) {
	procedureName = strings.TrimSpace(procedureName)

	entry, ok := match(c.catalog, procedureName)
	if !ok {
		c.metrics.ObserveClassification("unclassified")
		return nil, fmt.Errorf("%w: %q", ErrUnclassified, procedureName)
	}

	issuedAt := c.now().In(c.loc)
	req := &AuthorizationRequest{
		Procedure:    procedureName,
		MatchedEntry: entry.Name,
		Tier:         entry.Tier,
		SLADays:      entry.Tier.SLADays(),
		Protocol:     c.protocols.Next(),
		Status:       StatusUnderReview,
		IssuedAt:     issuedAt,
		DueDate:      AddBusinessDays(issuedAt, entry.Tier.SLADays()),
	}
	if entry.Tier == TierImmediate {
		req.Status = StatusAuthorized
	}

	if err := c.log.Record(ctx, *req); err != nil {
		return nil, fmt.Errorf("record authorization: %w", err)
	}

	c.metrics.ObserveClassification(string(entry.Tier))
	c.logger.Info().
		Str("protocol", req.Protocol).
		Str("tier", string(req.Tier)).
		Str("matched_entry", entry.Name).
		Msg("procedure classified")

	return req, nil
}

// GetAuthorization returns a previously issued request.
func (c *Classifier) GetAuthorization(ctx context.Context, protocol string) (*AuthorizationRequest, error) {
	req, err := c.log.Get(ctx, strings.TrimSpace(protocol))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	return req, nil
}
