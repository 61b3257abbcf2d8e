// Package schedule computes when a journal's next prompt is due.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

const (
	biweeklyGap = 13 * 24 * time.Hour
	monthlyGap  = 20 * 24 * time.Hour
	maxSteps    = 10
)

// Cadence is a journal's dispatch schedule.
type Cadence struct {
	Frequency models.Frequency
	DayOfWeek *int
	Time      string
	Timezone  string
}

func FromJournal(j *models.Journal) Cadence {
	return Cadence{
		Frequency: j.PromptFrequency,
		DayOfWeek: j.PromptDayOfWeek,
		Time:      j.PromptTime,
		Timezone:  j.Timezone,
	}
}

func (c Cadence) Validate() error {
	if !c.Frequency.Valid() {
		return &template.InvalidConfigValueError{Field: "prompt_frequency", Value: c.Frequency,
			Reason: "must be one of daily, weekly, biweekly, monthly"}
	}
	if c.Frequency == models.FrequencyDaily && c.DayOfWeek != nil {
		return &template.InvalidConfigValueError{Field: "prompt_day_of_week", Value: *c.DayOfWeek,
			Reason: "must be unset for daily prompts"}
	}
	if c.Frequency != models.FrequencyDaily {
		if c.DayOfWeek == nil {
			return &template.InvalidConfigValueError{Field: "prompt_day_of_week",
				Reason: fmt.Sprintf("is required for %s prompts", c.Frequency)}
		}
		if *c.DayOfWeek < 0 || *c.DayOfWeek > 6 {
			return &template.InvalidConfigValueError{Field: "prompt_day_of_week", Value: *c.DayOfWeek,
				Reason: "must be between 0 (Sunday) and 6 (Saturday)"}
		}
	}
	if _, err := time.Parse("15:04", c.Time); err != nil {
		return &template.InvalidConfigValueError{Field: "prompt_time", Value: c.Time, Reason: "must be HH:MM (24h)"}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		return &template.InvalidConfigValueError{Field: "timezone", Value: c.Timezone, Reason: "must be an IANA time zone"}
	}
	return nil
}

// Spec renders the cadence as a cron spec. Biweekly and monthly share the
// weekly spec; Next filters the extra occurrences.
func (c Cadence) Spec() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	clock, _ := time.Parse("15:04", c.Time)
	dow := "*"
	if c.DayOfWeek != nil {
		dow = fmt.Sprint(*c.DayOfWeek)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", c.Timezone, clock.Minute(), clock.Hour(), dow), nil
}

// Next returns the first dispatch time strictly after after. lastSent is the
// journal's most recent send, used to space biweekly and monthly prompts.
func Next(c Cadence, after time.Time, lastSent *time.Time) (time.Time, error) {
	spec, err := c.Spec()
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cadence spec %q: %w", spec, err)
	}
	loc, _ := time.LoadLocation(c.Timezone)

	t := sched.Next(after)
	for i := 0; i < maxSteps; i++ {
		if accept(c.Frequency, t.In(loc), lastSent) {
			return t, nil
		}
		t = sched.Next(t)
	}
	return time.Time{}, fmt.Errorf("no %s occurrence found after %s", c.Frequency, after.Format(time.RFC3339))
}

func accept(f models.Frequency, t time.Time, lastSent *time.Time) bool {
	switch f {
	case models.FrequencyBiweekly:
		return lastSent == nil || t.Sub(*lastSent) >= biweeklyGap
	case models.FrequencyMonthly:
		return t.Day() <= 7 && (lastSent == nil || t.Sub(*lastSent) >= monthlyGap)
	default:
		return true
	}
}

// Due reports whether a prompt should go out at now. anchor is when the
// journal started (used until the first send).
func Due(c Cadence, anchor time.Time, lastSent *time.Time, now time.Time) (bool, time.Time, error) {
	from := anchor
	if lastSent != nil {
		from = *lastSent
	}
	next, err := Next(c, from, lastSent)
	if err != nil {
		return false, time.Time{}, err
	}
	return !next.After(now), next, nil
}
