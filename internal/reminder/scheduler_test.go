package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/you/meeting-payments/internal/domain"
)

type memHolds struct {
	holds []*domain.Reservation
}

func (m *memHolds) DueForReminder(_ context.Context, col string, now time.Time, before time.Duration) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, h := range m.holds {
		if !h.ExpiresAt.After(now) || h.ExpiresAt.After(now.Add(before)) {
			continue
		}
		switch col {
		case "gentle_reminder_at":
			if h.GentleReminderAt != nil {
				continue
			}
		case "urgent_reminder_at":
			if h.UrgentReminderAt != nil {
				continue
			}
		}
		out = append(out, *h)
	}
	return out, nil
}

func (m *memHolds) MarkReminderSent(_ context.Context, id, col string, at time.Time) error {
	for _, h := range m.holds {
		if h.ID != id {
			continue
		}
		ts := at
		if col == "gentle_reminder_at" {
			h.GentleReminderAt = &ts
		} else {
			h.UrgentReminderAt = &ts
		}
	}
	return nil
}

type memPub struct {
	keys    []string
	failFor string
}

func (p *memPub) PublishJSON(_ context.Context, key string, _ any) error {
	if p.failFor == key {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, key)
	return nil
}

func hold(id string, expiresIn time.Duration, now time.Time) *domain.Reservation {
	return &domain.Reservation{
		ID:         id,
		SessionRef: "chrg_" + id,
		GuestEmail: id + "@example.com",
		StartTime:  now.Add(10 * 24 * time.Hour),
		ExpiresAt:  now.Add(expiresIn),
	}
}

func TestSecondRunSendsNothing(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
	holds := &memHolds{holds: []*domain.Reservation{
		hold("a", 48*time.Hour, now), // gentle window only
		hold("b", 12*time.Hour, now), // both windows
	}}
	pub := &memPub{}
	s := New(holds, pub, Config{GentleBefore: 72 * time.Hour, UrgentBefore: 24 * time.Hour})

	rep, err := s.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.GentleFound != 2 || rep.GentleSent != 2 {
		t.Fatalf("gentle stage = %+v", rep)
	}
	if rep.UrgentFound != 1 || rep.UrgentSent != 1 {
		t.Fatalf("urgent stage = %+v", rep)
	}

	rep, err = s.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.GentleSent != 0 || rep.UrgentSent != 0 {
		t.Fatalf("second run resent reminders: %+v", rep)
	}
	if len(pub.keys) != 3 {
		t.Fatalf("published %d reminders, want 3", len(pub.keys))
	}
}

func TestFailedDispatchIsNotMarkedSent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
	holds := &memHolds{holds: []*domain.Reservation{hold("a", 48*time.Hour, now)}}
	pub := &memPub{failFor: "reminder.gentle"}
	s := New(holds, pub, Config{GentleBefore: 72 * time.Hour, UrgentBefore: 24 * time.Hour})

	rep, err := s.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.GentleSent != 0 {
		t.Fatalf("dispatch failed but counted as sent: %+v", rep)
	}
	if holds.holds[0].GentleReminderAt != nil {
		t.Fatal("failed dispatch must leave the sent-marker null for retry")
	}

	// Broker recovers; the same hold is picked up again.
	pub.failFor = ""
	rep, err = s.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.GentleSent != 1 {
		t.Fatalf("retry did not send: %+v", rep)
	}
}

func TestExpiredHoldNotReminded(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC)
	holds := &memHolds{holds: []*domain.Reservation{hold("a", -time.Hour, now)}}
	pub := &memPub{}
	s := New(holds, pub, Config{GentleBefore: 72 * time.Hour, UrgentBefore: 24 * time.Hour})

	rep, err := s.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.GentleFound != 0 || rep.UrgentFound != 0 {
		t.Fatalf("expired hold surfaced in reminder windows: %+v", rep)
	}
}
