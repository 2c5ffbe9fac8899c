package calendar

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/you/meeting-payments/internal/domain"
)

// Store reads the expert's blocked dates, confirmed bookings and scheduling
// settings. It never writes calendar data; experts manage their calendar
// elsewhere.
type Store struct {
	db               *gorm.DB
	defaultMinNotice int
}

func NewStore(db *gorm.DB, defaultMinNotice int) *Store {
	return &Store{db: db, defaultMinNotice: defaultMinNotice}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&domain.BlockedDate{}, &domain.ExpertSettings{})
}

func (s *Store) IsBlocked(ctx context.Context, expertID string, day time.Time) (bool, string, error) {
	var bd domain.BlockedDate
	err := s.db.WithContext(ctx).
		Where("expert_id = ? AND day = ?", expertID, day).
		Take(&bd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, bd.Reason, nil
}

func (s *Store) HasOverlap(ctx context.Context, expertID string, start, end time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("expert_id = ? AND payment_status IN ?", expertID,
			[]string{domain.PaymentPending, domain.PaymentSucceeded}).
		Where("start_time < ? AND start_time + (duration_min * interval '1 minute') > ?", end, start).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) MinNoticeHours(ctx context.Context, expertID string) (int, error) {
	var cfg domain.ExpertSettings
	err := s.db.WithContext(ctx).Take(&cfg, "expert_id = ?", expertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultMinNotice, nil
	}
	if err != nil {
		return 0, err
	}
	return cfg.MinNoticeHours, nil
}
