// Package session keeps per-conversation dialogue history and renders it as
// the transcript handed to the language model.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
)

var ErrInvalidID = errors.New("session id is required")

const (
	DefaultTTL             = 30 * time.Minute
	DefaultMaxSessions     = 10000
	DefaultMaxContextTurns = 20
	DefaultMaxTurns        = 200
)

// Turn is one user utterance and the agent's reply. An empty AgentReply means
// no reply has been recorded.
type Turn struct {
	UserMessage string    `json:"user"`
	AgentReply  string    `json:"reply,omitempty"`
	At          time.Time `json:"at"`
}

type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store owns the turn sequences of every session. Sessions are created lazily
// on first reference and evicted after a period of inactivity.
type Store interface {
	GetOrCreate(ctx context.Context, id string) (*Session, error)
	AppendTurn(ctx context.Context, id, userMessage, agentReply string) error
	// RenderContext returns the bounded transcript of id without creating or
	// touching the session.
	RenderContext(ctx context.Context, id string) (string, error)
}

const (
	userLabel      = "Usuário: "
	assistantLabel = "Assistente: "
)

// Render formats the last maxTurns turns oldest first, one line per message.
// maxTurns <= 0 renders every turn.
func Render(turns []Turn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var b strings.Builder
	for _, t := range turns {
		b.WriteString(userLabel)
		b.WriteString(t.UserMessage)
		b.WriteByte('\n')
		if t.AgentReply != "" {
			b.WriteString(assistantLabel)
			b.WriteString(t.AgentReply)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

type options struct {
	ttl             time.Duration
	maxSessions     int
	maxContextTurns int
	maxTurns        int
	now             func() time.Time
	logger          zerolog.Logger
	metrics         *observability.Metrics
}

func defaultOptions() options {
	return options{
		ttl:             DefaultTTL,
		maxSessions:     DefaultMaxSessions,
		maxContextTurns: DefaultMaxContextTurns,
		maxTurns:        DefaultMaxTurns,
		now:             time.Now,
		logger:          zerolog.Nop(),
	}
}

type Option func(*options)

// WithTTL sets the inactivity period after which a session is evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxSessions caps the in-memory store; the least recently used session
// is evicted when the cap is reached.
func WithMaxSessions(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSessions = n
		}
	}
}

// WithMaxContextTurns bounds how many recent turns RenderContext emits.
func WithMaxContextTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContextTurns = n
		}
	}
}

// WithMaxTurns bounds how many turns are retained per session.
func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
