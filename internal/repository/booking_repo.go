package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/meeting-payments/internal/domain"
)

type BookingRepo struct{ db *gorm.DB }

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Booking{}, &domain.RefundRecord{}, &domain.ProcessedEvent{})
}

// Finalize creates the durable booking and retires the hold in one
// transaction. The unique index on session_ref makes this idempotent under
// duplicate delivery: a second call reports created=false and changes
// nothing.
func (r *BookingRepo) Finalize(ctx context.Context, b *domain.Booking, reservationID string) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		ins := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_ref"}},
			DoNothing: true,
		}).Create(b)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return nil // already finalized by an earlier delivery
		}
		created = true
		if reservationID != "" {
			if err := tx.Delete(&domain.Reservation{}, "id = ?", reservationID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

func (r *BookingRepo) BySessionRef(ctx context.Context, sessionRef string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).Take(&b, "session_ref = ?", sessionRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) ListByExpert(ctx context.Context, expertID string, page, size int) ([]domain.Booking, int64, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	qb := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("expert_id = ?", expertID)
	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Booking
	if err := qb.Order("start_time ASC").Limit(size).Offset(page * size).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ClaimRefund inserts the refund record before any money moves; the unique
// session_ref index makes it a first-writer-wins claim. claimed=false means
// another delivery owns this refund and the caller must not issue one.
func (r *BookingRepo) ClaimRefund(ctx context.Context, rec *domain.RefundRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	ins := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_ref"}},
		DoNothing: true,
	}).Create(rec)
	if ins.Error != nil {
		return false, ins.Error
	}
	return ins.RowsAffected > 0, nil
}

// SetRefundRef stores the gateway's refund id on a claimed record once the
// refund actually went through.
func (r *BookingRepo) SetRefundRef(ctx context.Context, sessionRef, refundRef string) error {
	return r.db.WithContext(ctx).Model(&domain.RefundRecord{}).
		Where("session_ref = ?", sessionRef).
		Update("refund_ref", refundRef).Error
}

func (r *BookingRepo) RefundBySessionRef(ctx context.Context, sessionRef string) (*domain.RefundRecord, error) {
	var rec domain.RefundRecord
	err := r.db.WithContext(ctx).Take(&rec, "session_ref = ?", sessionRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AlreadyProcessed reports whether the processor event was applied before.
func (r *BookingRepo) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.ProcessedEvent{}).
		Where("id = ?", eventID).Count(&n).Error
	return n > 0, err
}

func (r *BookingRepo) MarkProcessed(ctx context.Context, eventID, eventKey string) error {
	rec := domain.ProcessedEvent{ID: eventID, EventKey: eventKey, ProcessedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}
