package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"forecast_bot/internal/domain/subscriber"

	"github.com/jmoiron/sqlx"
)

type PostgresSubscriberRepository struct {
	db *sqlx.DB
}

var _ subscriber.Repository = (*PostgresSubscriberRepository)(nil)

func NewPostgresSubscriberRepository(db *sqlx.DB) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{db: db}
}

func (r *PostgresSubscriberRepository) Subscribe(ctx context.Context, chatID int64, userID int64) (bool, error) {
	query := `INSERT INTO subscribers (chat_id, user_id, active)
	               VALUES ($1, $2, TRUE)
	               ON CONFLICT (chat_id) DO UPDATE
	               SET active = TRUE, user_id = EXCLUDED.user_id
	               WHERE NOT subscribers.active
	               RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, chatID, sql.NullInt64{Int64: userID, Valid: userID != 0}).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error subscribing chat: %w", err)
	}
	return true, nil
}

func (r *PostgresSubscriberRepository) Unsubscribe(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE subscribers SET active = FALSE WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("error unsubscribing chat: %w", err)
	}
	return nil
}

func (r *PostgresSubscriberRepository) IsActive(ctx context.Context, chatID int64) (bool, error) {
	var active bool
	query := `SELECT EXISTS (SELECT 1 FROM subscribers WHERE chat_id = $1 AND active)`
	if err := r.db.GetContext(ctx, &active, query, chatID); err != nil {
		return false, fmt.Errorf("error checking subscriber: %w", err)
	}
	return active, nil
}

func (r *PostgresSubscriberRepository) ListActiveChatIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT chat_id FROM subscribers WHERE active ORDER BY id`); err != nil {
		return nil, fmt.Errorf("error listing active subscribers: %w", err)
	}
	return ids, nil
}

func (r *PostgresSubscriberRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM subscribers WHERE active`); err != nil {
		return 0, fmt.Errorf("error counting active subscribers: %w", err)
	}
	return n, nil
}
