package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/meeting-payments/internal/domain"
	"github.com/you/meeting-payments/internal/reminder"
)

type memSweeper struct {
	holds []domain.Reservation
}

func (m *memSweeper) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	var kept []domain.Reservation
	var removed int64
	for _, h := range m.holds {
		if h.ExpiresAt.After(now) {
			kept = append(kept, h)
		} else {
			removed++
		}
	}
	m.holds = kept
	return removed, nil
}

type stubReminders struct{ rep reminder.Report }

func (s stubReminders) Run(_ context.Context, _ time.Time) (reminder.Report, error) {
	return s.rep, nil
}

func cronRouter(h *CronHandler, secret string) *gin.Engine {
	r := gin.New()
	g := r.Group("/internal/cron")
	g.Use(CronAuth(secret))
	g.POST("/reminders", h.Reminders)
	g.POST("/sweep", h.Sweep)
	return r
}

func postCron(r *gin.Engine, path, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if secret != "" {
		req.Header.Set("X-Cron-Secret", secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSweepRemovesOnlyExpiredHolds(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	sw := &memSweeper{holds: []domain.Reservation{
		{ID: "r1", SessionRef: "chrg_1", ExpertID: "expert-1", ExpiresAt: now.Add(-time.Minute)},
		{ID: "r2", SessionRef: "chrg_2", ExpertID: "expert-1", ExpiresAt: now.Add(-time.Hour)},
		{ID: "r3", SessionRef: "chrg_3", ExpertID: "expert-2", ExpiresAt: now.Add(time.Hour)},
	}}
	r := cronRouter(NewCronHandler(stubReminders{}, sw), "s3cret")

	w := postCron(r, "/internal/cron/sweep", "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["removed"] != float64(2) {
		t.Fatalf("removed = %v, want 2", out["removed"])
	}
	if len(sw.holds) != 1 || sw.holds[0].ID != "r3" {
		t.Fatalf("live hold must survive the sweep, got %+v", sw.holds)
	}

	// a second run has nothing left to remove
	w = postCron(r, "/internal/cron/sweep", "s3cret")
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["removed"] != float64(0) {
		t.Fatalf("second sweep removed = %v, want 0", out["removed"])
	}
}

func TestCronEndpointsRejectBadSecret(t *testing.T) {
	t.Parallel()

	sw := &memSweeper{}
	r := cronRouter(NewCronHandler(stubReminders{}, sw), "s3cret")

	if w := postCron(r, "/internal/cron/sweep", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret status = %d, want 401", w.Code)
	}
	if w := postCron(r, "/internal/cron/reminders", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d, want 401", w.Code)
	}
}
