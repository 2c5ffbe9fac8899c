package httpapi

import (
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Bookings *BookingHandler
	Webhook  *WebhookHandler
	Cron     *CronHandler
	Experts  *ExpertHandler

	JWTSecret  string
	CronSecret string
}

func NewRouter(h Handlers) *gin.Engine {
	r := gin.Default()

	r.GET("/payments/return", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(200, `
		  <html><body>
			<h3>Payment flow completed (client-side)</h3>
			<p>session: %s</p>
			<p>Note: Final status will be confirmed via Webhook or polling.</p>
		  </body></html>
		`, c.Query("charge_id"))
	})

	r.POST("/webhooks/payment", h.Webhook.Handle)

	v1 := r.Group("/v1")
	{
		v1.POST("/bookings", h.Bookings.Create)

		me := v1.Group("/experts/me")
		me.Use(JWTAuth(h.JWTSecret))
		me.GET("/bookings", h.Experts.ListBookings)
	}

	cron := r.Group("/internal/cron")
	cron.Use(CronAuth(h.CronSecret))
	{
		cron.POST("/reminders", h.Cron.Reminders)
		cron.POST("/sweep", h.Cron.Sweep)
	}

	return r
}
