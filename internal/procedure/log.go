package procedure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-booking-agent/internal/db"
)

// AuthorizationLog keeps issued authorization requests by protocol.
type AuthorizationLog interface {
	Record(ctx context.Context, req AuthorizationRequest) error
	Get(ctx context.Context, protocol string) (*AuthorizationRequest, error)
}

type MemoryLog struct {
	mu   sync.RWMutex
	reqs map[string]AuthorizationRequest
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{reqs: make(map[string]AuthorizationRequest)}
}

func (l *MemoryLog) Record(_ context.Context, req AuthorizationRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.reqs[req.Protocol]; dup {
		return fmt.Errorf("duplicate protocol %s", req.Protocol)
	}
	l.reqs[req.Protocol] = req
	return nil
}

func (l *MemoryLog) Get(_ context.Context, protocol string) (*AuthorizationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	req, ok := l.reqs[protocol]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

// PgLog persists authorization requests in the authorization_requests table.
type PgLog struct {
	pool db.Querier
}

func NewPgLog(pool db.Querier) *PgLog {
	return &PgLog{pool: pool}
}

func (l *PgLog) Record(ctx context.Context, req AuthorizationRequest) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO authorization_requests
			(protocol, procedure_name, matched_entry, tier, sla_days, status, issued_at, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.Protocol, req.Procedure, req.MatchedEntry, string(req.Tier), req.SLADays,
		string(req.Status), req.IssuedAt, req.DueDate)
	if err != nil {
		return fmt.Errorf("insert authorization request: %w", err)
	}
	return nil
}

func (l *PgLog) Get(ctx context.Context, protocol string) (*AuthorizationRequest, error) {
	var (
		req          AuthorizationRequest
		tier, status string
		issued, due  time.Time
	)
	err := l.pool.QueryRow(ctx, `
		SELECT protocol, procedure_name, matched_entry, tier, sla_days, status, issued_at, due_date
		FROM authorization_requests
		WHERE protocol = $1
	`, protocol).Scan(&req.Protocol, &req.Procedure, &req.MatchedEntry, &tier, &req.SLADays,
		&status, &issued, &due)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	req.Tier = Tier(tier)
	req.Status = Status(status)
	req.IssuedAt = issued
	req.DueDate = due
	return &req, nil
}
