package conflict

import (
	"context"
	"testing"
	"time"
)

type stubCalendar struct {
	blocked bool
	reason  string
	overlap bool
	notice  int
}

func (s stubCalendar) IsBlocked(_ context.Context, _ string, _ time.Time) (bool, string, error) {
	return s.blocked, s.reason, nil
}
func (s stubCalendar) HasOverlap(_ context.Context, _ string, _, _ time.Time) (bool, error) {
	return s.overlap, nil
}
func (s stubCalendar) MinNoticeHours(_ context.Context, _ string) (int, error) {
	return s.notice, nil
}

func TestBlockedDateWinsOverOverlap(t *testing.T) {
	t.Parallel()

	d := NewDetector(stubCalendar{blocked: true, reason: "holiday", overlap: true})
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)

	res, err := d.Detect(context.Background(), "expert-1", start, start.Add(time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != BlockedDate {
		t.Fatalf("got %s, want blocked_date to win", res.Type)
	}
	if res.Reason != "holiday" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestOverlapBeatsMinNotice(t *testing.T) {
	t.Parallel()

	d := NewDetector(stubCalendar{overlap: true, notice: 48})
	now := time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour) // would also violate notice

	res, err := d.Detect(context.Background(), "expert-1", start, start.Add(time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != TimeOverlap {
		t.Fatalf("got %s, want time_overlap", res.Type)
	}
}

func TestMinNoticeViolation(t *testing.T) {
	t.Parallel()

	d := NewDetector(stubCalendar{notice: 24})
	now := time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC)
	start := now.Add(3 * time.Hour)

	res, err := d.Detect(context.Background(), "expert-1", start, start.Add(time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != MinNotice {
		t.Fatalf("got %s, want minimum_notice_violation", res.Type)
	}
	if res.RequiredNotice != 24 {
		t.Fatalf("required notice = %d", res.RequiredNotice)
	}
}

func TestNoConflict(t *testing.T) {
	t.Parallel()

	d := NewDetector(stubCalendar{notice: 24})
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	start := now.Add(72 * time.Hour)

	res, err := d.Detect(context.Background(), "expert-1", start, start.Add(time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != None {
		t.Fatalf("got %s, want none", res.Type)
	}
}
