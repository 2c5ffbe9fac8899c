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

// ErrSlotTaken is terminal for the attempt: another hold or booking owns the
// slot. The caller must expire the checkout session it already opened.
var ErrSlotTaken = errors.New("slot_taken")

type ReservationRepo struct{ db *gorm.DB }

func NewReservationRepo(db *gorm.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Reservation{})
}

// Reserve places a hold on the slot in one transaction. The pre-check only
// gives same-guest re-entry; the unique index on (expert_id, start_time) plus
// the post-insert row count is the actual guard against the check/insert
// race. Two different guests racing for the slot collide on the index and
// exactly one insert lands, whatever their pre-checks saw.
func (r *ReservationRepo) Reserve(ctx context.Context, res *domain.Reservation) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Reservation
		err := tx.Model(&domain.Reservation{}).
			Where("expert_id = ? AND start_time = ? AND expires_at > ?",
				res.ExpertID, res.StartTime, now).
			Take(&existing).Error
		if err == nil {
			if existing.GuestEmail == res.GuestEmail {
				// Same guest retrying checkout: hand back the live hold.
				*res = existing
				return nil
			}
			return ErrSlotTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// A lapsed hold still occupies the slot index until the sweep runs;
		// clear it here so the slot is reusable immediately.
		if err := tx.Where("expert_id = ? AND start_time = ? AND expires_at <= ?",
			res.ExpertID, res.StartTime, now).
			Delete(&domain.Reservation{}).Error; err != nil {
			return err
		}

		if res.ID == "" {
			res.ID = uuid.NewString()
		}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(res)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return ErrSlotTaken
		}
		return nil
	})
}

func (r *ReservationRepo) BySessionRef(ctx context.Context, sessionRef string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.WithContext(ctx).Take(&res, "session_ref = ?", sessionRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LinkPayment stores the resolved payment reference and any voucher
// instructions on the hold.
func (r *ReservationRepo) LinkPayment(ctx context.Context, sessionRef, paymentRef, instructions string) error {
	updates := map[string]any{"payment_ref": paymentRef}
	if instructions != "" {
		updates["instructions"] = instructions
	}
	return r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("session_ref = ?", sessionRef).
		Updates(updates).Error
}

func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Reservation{}, "id = ?", id).Error
}

// SweepExpired removes holds that never finalized into a booking.
func (r *ReservationRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Reservation{})
	return res.RowsAffected, res.Error
}

// DueForReminder lists active delayed-payment holds inside the reminder
// window whose sent-marker column is still null. col must be one of the
// reminder timestamp columns.
func (r *ReservationRepo) DueForReminder(ctx context.Context, col string, now time.Time, before time.Duration) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Where("expires_at <= ?", now.Add(before)).
		Where(col + " IS NULL").
		Order("expires_at ASC").
		Find(&out).Error
	return out, err
}

// MarkReminderSent records the dispatch after it happened; a crash between
// dispatch and this write costs at most a duplicate send.
func (r *ReservationRepo) MarkReminderSent(ctx context.Context, id, col string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Reservation{}).
		Where("id = ?", id).
		Update(col, at).Error
}
