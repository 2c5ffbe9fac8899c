package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/you/meeting-payments/internal/notify"
	"github.com/you/meeting-payments/pkg/mq"
	"github.com/you/meeting-payments/pkg/obs"
)

type Cfg struct {
	RabbitURL      string `envconfig:"RABBIT_URL" required:"true"`
	EngineExchange string `envconfig:"ENGINE_EXCHANGE" default:"meeting.exchange"`
	Queue          string `envconfig:"NOTIFY_QUEUE" default:"notification.q"`
	Prefetch       int    `envconfig:"NOTIFY_PREFETCH" default:"16"`
	DLX            string `envconfig:"NOTIFY_DLX" default:"notification.dlx"`
	DLQ            string `envconfig:"NOTIFY_DLQ" default:"notification.q.dlq"`
}

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load()
	var cfg Cfg
	must(0, envconfig.Process("", &cfg))

	shutdownTracer := obs.InitTracer("meeting-payments-notify")
	defer func() { _ = shutdownTracer(context.Background()) }()

	cons := must(mq.NewConsumer(mq.ConsumerConfig{
		URL:      cfg.RabbitURL,
		Exchange: cfg.EngineExchange,
		Queue:    cfg.Queue,
		Bindings: []string{"payment.*", "booking.*", "reminder.*", "payout.*"},
		Prefetch: cfg.Prefetch,
		UseDLX:   true,
		DLXName:  cfg.DLX,
		DLXQueue: cfg.DLQ,
	}))
	defer cons.Close()

	w := notify.NewWorker(cons, notify.NewConsole())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Printf("[notify] run error: %v", err)
		}
	}()
	log.Printf("[notify] started. queue=%s exchange=%s", cfg.Queue, cfg.EngineExchange)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	time.Sleep(200 * time.Millisecond)
}
