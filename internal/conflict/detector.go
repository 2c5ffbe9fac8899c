package conflict

import (
	"context"
	"fmt"
	"time"
)

type Type string

const (
	BlockedDate Type = "blocked_date"
	TimeOverlap Type = "time_overlap"
	MinNotice   Type = "minimum_notice_violation"
	None        Type = "none"
)

// Result is the first conflict found for a slot, or None.
type Result struct {
	Type           Type
	Reason         string
	RequiredNotice int // hours, set for MinNotice
}

// Calendar is the read-only view of an expert's availability the detector
// needs. The gorm implementation lives in internal/calendar.
type Calendar interface {
	IsBlocked(ctx context.Context, expertID string, day time.Time) (bool, string, error)
	HasOverlap(ctx context.Context, expertID string, start, end time.Time) (bool, error)
	MinNoticeHours(ctx context.Context, expertID string) (int, error)
}

type Detector struct {
	cal Calendar
}

func NewDetector(cal Calendar) *Detector {
	return &Detector{cal: cal}
}

// Detect runs the checks in priority order and short-circuits on the first
// match: blocked date beats overlap beats minimum notice.
func (d *Detector) Detect(ctx context.Context, expertID string, start, end, now time.Time) (Result, error) {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	blocked, reason, err := d.cal.IsBlocked(ctx, expertID, day)
	if err != nil {
		return Result{}, fmt.Errorf("blocked date check: %w", err)
	}
	if blocked {
		if reason == "" {
			reason = "date blocked by expert"
		}
		return Result{Type: BlockedDate, Reason: reason}, nil
	}

	overlap, err := d.cal.HasOverlap(ctx, expertID, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("overlap check: %w", err)
	}
	if overlap {
		return Result{Type: TimeOverlap, Reason: "slot overlaps a confirmed booking"}, nil
	}

	notice, err := d.cal.MinNoticeHours(ctx, expertID)
	if err != nil {
		return Result{}, fmt.Errorf("notice check: %w", err)
	}
	if notice > 0 && start.Sub(now) < time.Duration(notice)*time.Hour {
		return Result{
			Type:           MinNotice,
			Reason:         fmt.Sprintf("requires %dh notice", notice),
			RequiredNotice: notice,
		}, nil
	}

	return Result{Type: None}, nil
}
