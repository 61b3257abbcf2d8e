package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/webhook"
)

type fakeTiers struct {
	premium  map[uuid.UUID]bool
	lastAt   map[uuid.UUID]time.Time
	journals []uuid.UUID
}

func newFakeTiers(journals []uuid.UUID) *fakeTiers {
	return &fakeTiers{premium: map[uuid.UUID]bool{}, lastAt: map[uuid.UUID]time.Time{}, journals: journals}
}

func (f *fakeTiers) SetPremium(_ context.Context, userID uuid.UUID, premium bool, at time.Time) ([]uuid.UUID, bool, error) {
	if last, ok := f.lastAt[userID]; ok && !at.After(last) {
		return nil, false, nil
	}
	f.premium[userID] = premium
	f.lastAt[userID] = at
	return f.journals, true, nil
}

type fakeInvalidator struct{ ids []uuid.UUID }

func (f *fakeInvalidator) InvalidateConfigs(_ context.Context, ids ...uuid.UUID) {
	f.ids = append(f.ids, ids...)
}

type nopAuditor struct{ n int }

func (a *nopAuditor) Record(context.Context, audit.LogEntry) { a.n++ }

var clock = time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC)

func newTestService(tiers TierStore, inv ConfigInvalidator, aud Auditor) *Service {
	svc := NewService(testSecret, tiers, inv, aud)
	svc.now = func() time.Time { return clock }
	return svc
}

const testSecret = "bill_secret"

func signAt(body string, at time.Time) (sig, ts string) {
	ts = strconv.FormatInt(at.Unix(), 10)
	return webhook.Sign(webhook.SignedContent(ts, []byte(body)), testSecret), ts
}

func TestHandleWebhook(t *testing.T) {
	user := uuid.New()
	journals := []uuid.UUID{uuid.New(), uuid.New()}

	tests := []struct {
		name        string
		body        string
		sign        bool
		wantErr     error
		wantPremium *bool
	}{
		{"activated", fmt.Sprintf(`{"id":"ev1","type":"subscription.activated","user_id":%q}`, user), true, nil, ptr(true)},
		{"canceled", fmt.Sprintf(`{"id":"ev2","type":"subscription.canceled","user_id":%q,"is_premium":true}`, user), true, nil, ptr(false)},
		{"updated", fmt.Sprintf(`{"id":"ev3","type":"subscription.updated","user_id":%q,"is_premium":true}`, user), true, nil, ptr(true)},
		{"unsigned", fmt.Sprintf(`{"type":"subscription.activated","user_id":%q}`, user), false, ErrBadSignature, nil},
		{"garbage", `{not json`, true, ErrBadPayload, nil},
		{"no user", `{"type":"subscription.activated"}`, true, ErrBadPayload, nil},
		{"ignored type", fmt.Sprintf(`{"type":"invoice.paid","user_id":%q}`, user), true, nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tiers := newFakeTiers(journals)
			inv := &fakeInvalidator{}
			aud := &nopAuditor{}
			svc := newTestService(tiers, inv, aud)

			sig, ts := signAt(tc.body, clock)
			if !tc.sign {
				sig = "sha256=deadbeef"
			}
			_, err := svc.HandleWebhook(context.Background(), []byte(tc.body), sig, ts)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tc.wantErr)
			}

			got, touched := tiers.premium[user]
			if tc.wantPremium == nil {
				if touched {
					t.Errorf("tier changed unexpectedly to %v", got)
				}
				return
			}
			if got != *tc.wantPremium {
				t.Errorf("premium: got %v, want %v", got, *tc.wantPremium)
			}
			if len(inv.ids) != len(journals) || aud.n != len(journals) {
				t.Errorf("invalidated %d, audited %d, want %d", len(inv.ids), aud.n, len(journals))
			}
		})
	}
}

func TestHandleWebhookRejectsStaleSignature(t *testing.T) {
	body := fmt.Sprintf(`{"id":"ev1","type":"subscription.canceled","user_id":%q}`, uuid.New())
	tiers := newFakeTiers(nil)
	svc := newTestService(tiers, &fakeInvalidator{}, &nopAuditor{})

	tests := []struct {
		name string
		at   time.Time
		ok   bool
	}{
		{"fresh", clock.Add(-time.Minute), true},
		{"slightly ahead", clock.Add(time.Minute), true},
		{"replayed an hour later", clock.Add(-time.Hour), false},
		{"far future", clock.Add(time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sig, ts := signAt(body, tc.at)
			_, err := svc.HandleWebhook(context.Background(), []byte(body), sig, ts)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrBadSignature) {
				t.Fatalf("err: got %v, want ErrBadSignature", err)
			}
		})
	}

	// the signature must cover the timestamp
	sig, _ := signAt(body, clock)
	if _, err := svc.HandleWebhook(context.Background(), []byte(body), sig, strconv.FormatInt(clock.Unix()-1, 10)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("swapped timestamp: got %v, want ErrBadSignature", err)
	}
}

func TestHandleWebhookOutOfOrder(t *testing.T) {
	user := uuid.New()
	journals := []uuid.UUID{uuid.New()}
	tiers := newFakeTiers(journals)
	inv := &fakeInvalidator{}
	aud := &nopAuditor{}
	svc := newTestService(tiers, inv, aud)

	deliver := func(body string) *Event {
		t.Helper()
		sig, ts := signAt(body, clock)
		ev, err := svc.HandleWebhook(context.Background(), []byte(body), sig, ts)
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
		return ev
	}

	activated := fmt.Sprintf(`{"id":"ev_a","type":"subscription.activated","user_id":%q,"occurred_at":"2026-05-02T00:00:00Z"}`, user)
	lateCancel := fmt.Sprintf(`{"id":"ev_c","type":"subscription.canceled","user_id":%q,"occurred_at":"2026-05-01T00:00:00Z"}`, user)

	if ev := deliver(activated); !ev.Applied {
		t.Fatal("activation was not applied")
	}
	if ev := deliver(lateCancel); ev.Applied {
		t.Fatal("an older cancel was applied over a newer activation")
	}
	if ev := deliver(activated); ev.Applied {
		t.Fatal("a duplicate activation was applied twice")
	}
	if !tiers.premium[user] {
		t.Fatal("user lost premium to a late event")
	}
	if len(inv.ids) != 1 || aud.n != 1 {
		t.Errorf("only the first event should invalidate and audit: invalidated %d, audited %d", len(inv.ids), aud.n)
	}

	laterCancel := fmt.Sprintf(`{"id":"ev_c2","type":"subscription.canceled","user_id":%q,"occurred_at":"2026-05-03T00:00:00Z"}`, user)
	if ev := deliver(laterCancel); !ev.Applied || tiers.premium[user] {
		t.Fatal("a newer cancel should downgrade the user")
	}
}

func ptr[T any](v T) *T { return &v }
