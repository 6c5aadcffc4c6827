package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations repositories use. Both a pooled
// connection and a transaction satisfy it, so repositories are oblivious
// to transactional boundaries.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Scope wraps a connection with campaign context and ensures cleanup.
// When a campaign is set, app.current_campaign_id is configured on the
// connection for RLS policy evaluation.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Querier returns the active transaction if one is open, else the
// underlying connection.
func (s *Scope) Querier() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// Close resets campaign context and releases the connection to the pool.
// It MUST be called to prevent campaign context leaking to the next request.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_campaign_id")
	s.Conn.Release()
}

// WithCampaign acquires a connection scoped to the given campaign.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithCampaign(ctx context.Context, campaignID uuid.UUID) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_campaign_id', $1, false)", campaignID.String())
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &Scope{Conn: conn}, nil
}

// WithoutCampaign acquires a connection without campaign context. Creation
// drafts exist before any campaign does, so draft operations use this.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithoutCampaign(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

type contextKey string

const scopeKey contextKey = "dbScope"

// GetScope retrieves the scoped database connection from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// TxManager runs a function inside a database transaction. Services use
// it for operations with a transactional contract, like ApplyToCampaign.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeTxManager implements TxManager on top of the context scope.
type ScopeTxManager struct{}

// NewTxManager returns a TxManager backed by the scope in context.
func NewTxManager() *ScopeTxManager {
	return &ScopeTxManager{}
}

// WithinTx begins a transaction on the scoped connection, runs fn with a
// transaction-bearing scope in context, and commits; any error rolls the
// whole transaction back.
func (m *ScopeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	if scope.tx != nil {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txScope := &Scope{Conn: scope.Conn, tx: tx}
	if err := fn(SetScope(ctx, txScope)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
