package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

func day(d int) *int { return &d }

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		c         Cadence
		wantField string
	}{
		{"daily ok", Cadence{models.FrequencyDaily, nil, "09:00", "UTC"}, ""},
		{"weekly ok", Cadence{models.FrequencyWeekly, day(2), "18:30", "America/New_York"}, ""},
		{"daily with day", Cadence{models.FrequencyDaily, day(1), "09:00", "UTC"}, "prompt_day_of_week"},
		{"weekly without day", Cadence{models.FrequencyWeekly, nil, "09:00", "UTC"}, "prompt_day_of_week"},
		{"day out of range", Cadence{models.FrequencyMonthly, day(9), "09:00", "UTC"}, "prompt_day_of_week"},
		{"bad time", Cadence{models.FrequencyDaily, nil, "9am", "UTC"}, "prompt_time"},
		{"bad zone", Cadence{models.FrequencyDaily, nil, "09:00", "Mars/Olympus"}, "timezone"},
		{"bad frequency", Cadence{"hourly", nil, "09:00", "UTC"}, "prompt_frequency"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ic *template.InvalidConfigValueError
			if !errors.As(err, &ic) || ic.Field != tc.wantField {
				t.Fatalf("got %v, want invalid %s", err, tc.wantField)
			}
		})
	}
}

func TestNext(t *testing.T) {
	chicago, _ := time.LoadLocation("America/Chicago")
	// Wednesday 2026-03-04 12:00 Chicago
	after := time.Date(2026, 3, 4, 12, 0, 0, 0, chicago)

	tests := []struct {
		name     string
		c        Cadence
		lastSent *time.Time
		want     time.Time
	}{
		{
			"daily later today",
			Cadence{models.FrequencyDaily, nil, "19:30", "America/Chicago"}, nil,
			time.Date(2026, 3, 4, 19, 30, 0, 0, chicago),
		},
		{
			"weekly on sunday",
			Cadence{models.FrequencyWeekly, day(0), "10:00", "America/Chicago"}, nil,
			time.Date(2026, 3, 8, 10, 0, 0, 0, chicago),
		},
		{
			"biweekly skips the week after a send",
			Cadence{models.FrequencyBiweekly, day(0), "10:00", "America/Chicago"},
			ptrTime(time.Date(2026, 3, 1, 10, 0, 0, 0, chicago)),
			time.Date(2026, 3, 15, 10, 0, 0, 0, chicago),
		},
		{
			"monthly takes the first matching weekday",
			Cadence{models.FrequencyMonthly, day(1), "09:00", "America/Chicago"}, nil,
			time.Date(2026, 4, 6, 9, 0, 0, 0, chicago),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.c, after, tc.lastSent)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDue(t *testing.T) {
	c := Cadence{models.FrequencyDaily, nil, "08:00", "UTC"}
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	due, next, err := Due(c, created, nil, time.Date(2026, 5, 2, 7, 59, 0, 0, time.UTC))
	if err != nil || due {
		t.Fatalf("before first slot: due=%v err=%v", due, err)
	}
	if !next.Equal(time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("next: got %s", next)
	}

	due, _, _ = Due(c, created, nil, time.Date(2026, 5, 2, 8, 1, 0, 0, time.UTC))
	if !due {
		t.Error("expected due after first slot")
	}

	sent := time.Date(2026, 5, 2, 8, 0, 30, 0, time.UTC)
	due, _, _ = Due(c, created, &sent, time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC))
	if due {
		t.Error("already sent today; should not be due again")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
