package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"forecast_bot/internal/domain/schedule"

	"gopkg.in/yaml.v3"
)

// SeedSchedule is one entry of the YAML schedule seed file.
type SeedSchedule struct {
	Time        string   `yaml:"time"`
	Countries   []string `yaml:"countries"`
	Topics      []string `yaml:"topics"`
	Language    string   `yaml:"language"`
	TimeHorizon string   `yaml:"time_horizon"`
	Depth       string   `yaml:"depth"`
	Title       string   `yaml:"title"`
	Disabled    bool     `yaml:"disabled"`
}

type seedFile struct {
	Schedules []SeedSchedule `yaml:"schedules"`
}

// DefaultSeed is used when no seed file is configured.
var DefaultSeed = []SeedSchedule{{
	Time:        "08:00",
	Countries:   []string{"uk", "fr", "de"},
	Topics:      []string{"top_headlines", "economy"},
	Language:    "en",
	TimeHorizon: "24h",
	Depth:       "standard",
	Title:       "Morning Briefing",
}}

// LoadSeedFile reads schedules from a YAML file.
func LoadSeedFile(path string) ([]SeedSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Schedules) == 0 {
		return nil, fmt.Errorf("seed file %s has no schedules", path)
	}
	return f.Schedules, nil
}

func (s SeedSchedule) toSchedule() (*schedule.Schedule, error) {
	tod, err := schedule.ParseTimeOfDay(s.Time)
	if err != nil {
		return nil, err
	}
	sch := &schedule.Schedule{
		Enabled:     !s.Disabled,
		TimeOfDay:   tod,
		Countries:   s.Countries,
		Topics:      s.Topics,
		Language:    s.Language,
		TimeHorizon: s.TimeHorizon,
		Depth:       s.Depth,
		Title:       sql.NullString{String: s.Title, Valid: s.Title != ""},
	}
	countries, err := sch.Validate()
	if err != nil {
		return nil, err
	}
	sch.Countries = countries
	return sch, nil
}

// SeedSchedules creates the given schedules only when the table is empty.
// It returns the number of schedules created.
func SeedSchedules(ctx context.Context, repo schedule.Repository, seeds []SeedSchedule) (int, error) {
	n, err := repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	created := 0
	for i, seed := range seeds {
		sch, err := seed.toSchedule()
		if err != nil {
			return created, fmt.Errorf("seed schedule %d: %w", i, err)
		}
		if err := repo.Create(ctx, sch); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
