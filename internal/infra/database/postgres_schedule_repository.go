package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"forecast_bot/internal/domain/schedule"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// scheduleRow mirrors a 'forecast_schedules' row.
type scheduleRow struct {
	ID          int64          `db:"id"`
	Enabled     bool           `db:"enabled"`
	TimeUTC     string         `db:"time_utc"`
	Countries   pq.StringArray `db:"countries"`
	Topics      pq.StringArray `db:"topics"`
	Language    string         `db:"language"`
	TimeHorizon string         `db:"time_horizon"`
	Depth       string         `db:"depth"`
	Title       sql.NullString `db:"title"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r scheduleRow) toDomain() (*schedule.Schedule, error) {
	tod, err := schedule.ParseTimeOfDay(r.TimeUTC)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", r.ID, err)
	}
	return &schedule.Schedule{
		ID:          r.ID,
		Enabled:     r.Enabled,
		TimeOfDay:   tod,
		Countries:   []string(r.Countries),
		Topics:      []string(r.Topics),
		Language:    r.Language,
		TimeHorizon: r.TimeHorizon,
		Depth:       r.Depth,
		Title:       r.Title,
		CreatedAt:   r.CreatedAt,
	}, nil
}

type PostgresScheduleRepository struct {
	db *sqlx.DB
}

var _ schedule.Repository = (*PostgresScheduleRepository)(nil)

func NewPostgresScheduleRepository(db *sqlx.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

const scheduleColumns = `id, enabled, time_utc, countries, topics, language, time_horizon, depth, title, created_at`

func (r *PostgresScheduleRepository) Create(ctx context.Context, s *schedule.Schedule) error {
	query := `INSERT INTO forecast_schedules (enabled, time_utc, countries, topics, language, time_horizon, depth, title)
	               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	               RETURNING id, created_at`

	horizon, depth := s.TimeHorizon, s.Depth
	if horizon == "" {
		horizon = schedule.DefaultTimeHorizon
	}
	if depth == "" {
		depth = schedule.DefaultDepth
	}

	err := r.db.QueryRowContext(ctx, query,
		s.Enabled, s.TimeOfDay.String(), pq.StringArray(s.Countries), pq.StringArray(s.Topics),
		s.Language, horizon, depth, s.Title,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating schedule: %w", err)
	}
	s.TimeHorizon, s.Depth = horizon, depth
	return nil
}

func (r *PostgresScheduleRepository) GetByID(ctx context.Context, id int64) (*schedule.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM forecast_schedules WHERE id = $1`
	var row scheduleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrNotFound
		}
		return nil, fmt.Errorf("error getting schedule by ID: %w", err)
	}
	return row.toDomain()
}

func (r *PostgresScheduleRepository) ListEnabled(ctx context.Context) ([]*schedule.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM forecast_schedules WHERE enabled ORDER BY time_utc, id`)
}

func (r *PostgresScheduleRepository) ListAll(ctx context.Context) ([]*schedule.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM forecast_schedules ORDER BY time_utc, id`)
}

func (r *PostgresScheduleRepository) list(ctx context.Context, query string) ([]*schedule.Schedule, error) {
	rows := make([]scheduleRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error listing schedules: %w", err)
	}
	schedules := make([]*schedule.Schedule, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

func (r *PostgresScheduleRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM forecast_schedules`); err != nil {
		return 0, fmt.Errorf("error counting schedules: %w", err)
	}
	return n, nil
}
