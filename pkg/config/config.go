package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB / stores
	PGDSN    string `envconfig:"PG_DSN" required:"true"`
	RedisURL string `envconfig:"REDIS_URL" default:"redis://redis:6379/0"`

	// RabbitMQ
	RabbitURL      string `envconfig:"RABBIT_URL" required:"true"`
	EngineExchange string `envconfig:"ENGINE_EXCHANGE" default:"meeting.exchange"`

	// Omise
	OmisePub          string `envconfig:"OMISE_PUBLIC_KEY" required:"true"`
	OmiseSec          string `envconfig:"OMISE_SECRET_KEY" required:"true"`
	WebhookSecret     string `envconfig:"WEBHOOK_SECRET" required:"true"`
	VerifyWithGateway bool   `envconfig:"WEBHOOK_VERIFY_WITH_GATEWAY" default:"true"`
	CheckoutReturnURI string `envconfig:"CHECKOUT_RETURN_URI" default:"http://localhost:8080/payments/return"`

	// Internal cron endpoints
	CronSecret string `envconfig:"CRON_SECRET" required:"true"`

	// JWT (expert-facing endpoints)
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Policy & windows
	RefundPolicy     string        `envconfig:"REFUND_POLICY" default:"v2-customer-first"`
	PaymentWindow    time.Duration `envconfig:"PAYMENT_WINDOW" default:"168h"`
	ReservationTTL   time.Duration `envconfig:"RESERVATION_TTL" default:"192h"`
	IdempotencyTTL   time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"10m"`
	GentleBefore     time.Duration `envconfig:"REMINDER_GENTLE_BEFORE" default:"72h"`
	UrgentBefore     time.Duration `envconfig:"REMINDER_URGENT_BEFORE" default:"24h"`
	DefaultMinNotice int           `envconfig:"DEFAULT_MIN_NOTICE_HOURS" default:"24"`

	// Network
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
