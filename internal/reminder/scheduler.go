package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/you/meeting-payments/internal/domain"
)

// Stage column names match the nullable sent-marker columns on the
// reservation row.
const (
	colGentle = "gentle_reminder_at"
	colUrgent = "urgent_reminder_at"
)

type Holds interface {
	DueForReminder(ctx context.Context, col string, now time.Time, before time.Duration) ([]domain.Reservation, error)
	MarkReminderSent(ctx context.Context, id, col string, at time.Time) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Config struct {
	GentleBefore time.Duration // window before expiry for the first nudge
	UrgentBefore time.Duration // window before expiry for the last call
}

// Scheduler is a fixed-interval batch job over active delayed-payment holds.
// Dispatch happens before the sent-marker write: a crash in between costs a
// duplicate reminder on the next run, never a lost one.
type Scheduler struct {
	holds Holds
	pub   Publisher
	cfg   Config
}

func New(holds Holds, pub Publisher, cfg Config) *Scheduler {
	return &Scheduler{holds: holds, pub: pub, cfg: cfg}
}

type Report struct {
	GentleFound int `json:"gentle_found"`
	GentleSent  int `json:"gentle_sent"`
	UrgentFound int `json:"urgent_found"`
	UrgentSent  int `json:"urgent_sent"`
}

func (s *Scheduler) Run(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	var err error
	rep.GentleFound, rep.GentleSent, err = s.runStage(ctx, now, "reminder.gentle", colGentle, s.cfg.GentleBefore)
	if err != nil {
		return rep, fmt.Errorf("gentle stage: %w", err)
	}
	rep.UrgentFound, rep.UrgentSent, err = s.runStage(ctx, now, "reminder.urgent", colUrgent, s.cfg.UrgentBefore)
	if err != nil {
		return rep, fmt.Errorf("urgent stage: %w", err)
	}
	return rep, nil
}

func (s *Scheduler) runStage(ctx context.Context, now time.Time, key, col string, before time.Duration) (found, sent int, err error) {
	due, err := s.holds.DueForReminder(ctx, col, now, before)
	if err != nil {
		return 0, 0, err
	}
	for _, res := range due {
		payload := map[string]any{
			"session_ref": res.SessionRef,
			"guest_email": res.GuestEmail,
			"guest_name":  res.GuestName,
			"start":       res.StartTime.Unix(),
			"expires_at":  res.ExpiresAt.Unix(),
		}
		if err := s.pub.PublishJSON(ctx, key, payload); err != nil {
			// Unsent and unmarked: the next run retries this hold.
			log.Printf("[reminder] dispatch %s for %s failed: %v", key, res.SessionRef, err)
			continue
		}
		if err := s.holds.MarkReminderSent(ctx, res.ID, col, now); err != nil {
			log.Printf("[reminder] mark %s for %s failed: %v", col, res.SessionRef, err)
			continue
		}
		sent++
	}
	return len(due), sent, nil
}
