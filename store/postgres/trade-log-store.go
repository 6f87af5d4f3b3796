package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milkmamado/biscal-sub002/domain"
)

// TradeLogStore implements usecase.TradeLogStore on PostgreSQL.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

func (s *TradeLogStore) Insert(ctx context.Context, t *domain.TradeLog) error {
	const query = `
		INSERT INTO trade_logs (symbol, side, price, qty, pnl, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		t.Symbol, t.Side, t.Price, t.Qty, t.Pnl, t.Note, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("postgres: insert trade log: %w", err)
	}
	return nil
}

// InsertBatch queues all inserts in one round trip.
func (s *TradeLogStore) InsertBatch(ctx context.Context, logs []domain.TradeLog) error {
	if len(logs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO trade_logs (symbol, side, price, qty, pnl, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, t := range logs {
		batch.Queue(query, t.Symbol, t.Side, t.Price, t.Qty, t.Pnl, t.Note, t.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range logs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade log batch item %d: %w", i, err)
		}
	}
	return nil
}

func (s *TradeLogStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeLog, error) {
	const query = `
		SELECT id, symbol, side, price, qty, pnl, note, created_at
		FROM trade_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.TradeLog
	for rows.Next() {
		var t domain.TradeLog
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.Pnl, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade log: %w", err)
		}
		logs = append(logs, t)
	}
	return logs, rows.Err()
}
