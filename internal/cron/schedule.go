package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Interval fires every d. Unlike cron.Every it keeps sub-second precision.
type Interval time.Duration

// Next implements cron.Schedule.
func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// ValidateSchedule checks a cron expression or descriptor.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func (j Job) schedule() (cron.Schedule, error) {
	if j.Interval > 0 {
		return Interval(j.Interval), nil
	}
	if j.Schedule == "" {
		return nil, errors.New("invalid cron expression: empty schedule")
	}
	s, err := parser.Parse(j.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s, nil
}

func (j Job) describe() string {
	if j.Interval > 0 {
		return "every " + j.Interval.String()
	}
	return j.Schedule
}
