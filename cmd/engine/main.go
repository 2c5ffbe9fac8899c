package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/meeting-payments/internal/calendar"
	"github.com/you/meeting-payments/internal/conflict"
	"github.com/you/meeting-payments/internal/gateway"
	"github.com/you/meeting-payments/internal/httpapi"
	"github.com/you/meeting-payments/internal/idempotency"
	"github.com/you/meeting-payments/internal/processor"
	"github.com/you/meeting-payments/internal/refund"
	"github.com/you/meeting-payments/internal/reminder"
	"github.com/you/meeting-payments/internal/repository"
	"github.com/you/meeting-payments/pkg/config"
	"github.com/you/meeting-payments/pkg/db"
	"github.com/you/meeting-payments/pkg/mq"
	"github.com/you/meeting-payments/pkg/obs"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load()
	cfg := must(config.Load())

	shutdownTracer := obs.InitTracer("meeting-payments-engine")
	defer func() { _ = shutdownTracer(context.Background()) }()

	policy := must(refund.ParseVersion(cfg.RefundPolicy))

	// DB
	gdb := db.Open(cfg.PGDSN)
	resRepo := repository.NewReservationRepo(gdb)
	bookRepo := repository.NewBookingRepo(gdb)
	calStore := calendar.NewStore(gdb, cfg.DefaultMinNotice)
	must(0, resRepo.Migrate())
	must(0, bookRepo.Migrate())
	must(0, calStore.Migrate())

	// Shared idempotency cache
	idem := must(idempotency.Connect(cfg.RedisURL, cfg.IdempotencyTTL))

	// Payment gateway
	gw := must(gateway.New(cfg.OmisePub, cfg.OmiseSec, cfg.CheckoutReturnURI))

	// Publisher for notification / payout events
	pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.EngineExchange))
	defer pub.Close()

	det := conflict.NewDetector(calStore)
	proc := processor.New(resRepo, bookRepo, gw, det, pub, processor.Config{
		PaymentWindow:  cfg.PaymentWindow,
		ReservationTTL: cfg.ReservationTTL,
		Policy:         policy,
	})
	sched := reminder.New(resRepo, pub, reminder.Config{
		GentleBefore: cfg.GentleBefore,
		UrgentBefore: cfg.UrgentBefore,
	})

	r := httpapi.NewRouter(httpapi.Handlers{
		Bookings:   httpapi.NewBookingHandler(idem, gw, resRepo, det, proc, cfg.ReservationTTL),
		Webhook:    httpapi.NewWebhookHandler(cfg.WebhookSecret, proc, gw, cfg.VerifyWithGateway),
		Cron:       httpapi.NewCronHandler(sched, resRepo),
		Experts:    httpapi.NewExpertHandler(bookRepo),
		JWTSecret:  cfg.JWTSecret,
		CronSecret: cfg.CronSecret,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Println("[engine] http listening on", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("[engine] stopped")
}
