// Package tracker runs scheduled background syncs for tracked subjects
package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

// Config defines tracker configuration
type Config struct {
	// Schedule is the cron schedule for periodic subject syncs
	Schedule string `yaml:"schedule" default:"@every 5m"`

	// Concurrency is the number of sync tasks processed in parallel
	Concurrency int `yaml:"concurrency" default:"5"`

	// Limit bounds how many new signatures each scheduled sync lists;
	// zero means unbounded
	Limit int `yaml:"limit"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
	TaskTimeout     time.Duration `yaml:"taskTimeout" default:"10m"`
}

// Validate checks if the tracker configuration is valid
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if _, err := parseScheduleInterval(c.Schedule); err != nil {
		return err
	}

	return nil
}

// parseScheduleInterval converts a cron schedule string to a duration.
// Supports @every format and standard five-field cron expressions.
func parseScheduleInterval(schedule string) (time.Duration, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule format: %w", err)
	}

	if len(schedule) > 7 && schedule[:6] == "@every" {
		duration, err := time.ParseDuration(schedule[7:])
		if err != nil {
			return 0, fmt.Errorf("failed to parse @every duration: %w", err)
		}

		return duration, nil
	}

	// For standard cron expressions, derive the interval from two
	// consecutive runs.
	now := time.Now()
	next1 := sched.Next(now)
	next2 := sched.Next(next1)

	return next2.Sub(next1), nil
}
