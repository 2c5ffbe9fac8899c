package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/meeting-payments/internal/reminder"
)

// Sweeper deletes expired, never-finalized holds.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type Reminders interface {
	Run(ctx context.Context, now time.Time) (reminder.Report, error)
}

type CronHandler struct {
	reminders Reminders
	sweeper   Sweeper
}

func NewCronHandler(reminders Reminders, sweeper Sweeper) *CronHandler {
	return &CronHandler{reminders: reminders, sweeper: sweeper}
}

// POST /internal/cron/reminders
func (h *CronHandler) Reminders(c *gin.Context) {
	rep, err := h.reminders.Run(c, time.Now().UTC())
	if err != nil {
		log.Printf("[cron] reminders: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// POST /internal/cron/sweep
func (h *CronHandler) Sweep(c *gin.Context) {
	n, err := h.sweeper.SweepExpired(c, time.Now().UTC())
	if err != nil {
		log.Printf("[cron] sweep: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
