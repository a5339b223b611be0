package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forecast_bot/internal/domain/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memScheduleRepo struct {
	existing int
	created  []*schedule.Schedule
	countErr error
}

func (r *memScheduleRepo) Create(_ context.Context, s *schedule.Schedule) error {
	s.ID = int64(len(r.created) + 1)
	r.created = append(r.created, s)
	return nil
}

func (r *memScheduleRepo) GetByID(context.Context, int64) (*schedule.Schedule, error) {
	return nil, schedule.ErrNotFound
}

func (r *memScheduleRepo) ListEnabled(context.Context) ([]*schedule.Schedule, error) {
	return r.created, nil
}

func (r *memScheduleRepo) ListAll(context.Context) ([]*schedule.Schedule, error) {
	return r.created, nil
}

func (r *memScheduleRepo) Count(context.Context) (int, error) {
	return r.existing + len(r.created), r.countErr
}

const seedYAML = `
schedules:
  - time: "07:30"
    countries: [GB, de]
    topics: [economy, energy]
    language: de
    title: Frühausgabe
  - time: "19:00"
    countries: [fr]
    topics: [top_headlines]
    language: fr
    time_horizon: 3d
    depth: extended
    disabled: true
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	seeds, err := LoadSeedFile(writeSeed(t, seedYAML))
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "07:30", seeds[0].Time)
	assert.Equal(t, []string{"GB", "de"}, seeds[0].Countries)
	assert.Equal(t, "Frühausgabe", seeds[0].Title)
	assert.True(t, seeds[1].Disabled)
	assert.Equal(t, "3d", seeds[1].TimeHorizon)
}

func TestLoadSeedFile_Errors(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSeedFile(writeSeed(t, "schedules: [oops"))
	assert.Error(t, err)

	_, err = LoadSeedFile(writeSeed(t, "schedules: []"))
	assert.Error(t, err)
}

func TestSeedSchedules(t *testing.T) {
	seeds, err := LoadSeedFile(writeSeed(t, seedYAML))
	require.NoError(t, err)

	repo := &memScheduleRepo{}
	created, err := SeedSchedules(context.Background(), repo, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	first := repo.created[0]
	assert.True(t, first.Enabled)
	assert.Equal(t, schedule.TimeOfDay{Hour: 7, Minute: 30}, first.TimeOfDay)
	assert.Equal(t, []string{"uk", "de"}, first.Countries)
	assert.Equal(t, "Frühausgabe", first.DisplayTitle())
	assert.False(t, repo.created[1].Enabled)
}

func TestSeedSchedules_SkipsPopulatedTable(t *testing.T) {
	repo := &memScheduleRepo{existing: 3}
	created, err := SeedSchedules(context.Background(), repo, DefaultSeed)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, repo.created)
}

func TestSeedSchedules_InvalidSeed(t *testing.T) {
	repo := &memScheduleRepo{}
	seeds := []SeedSchedule{
		DefaultSeed[0],
		{Time: "25:00", Countries: []string{"uk"}, Topics: []string{"economy"}, Language: "en"},
	}
	created, err := SeedSchedules(context.Background(), repo, seeds)
	assert.Error(t, err)
	assert.Equal(t, 1, created)

	_, err = SeedSchedules(context.Background(), &memScheduleRepo{countErr: errors.New("db down")}, DefaultSeed)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "äö", truncate("äöü", 2))
}
