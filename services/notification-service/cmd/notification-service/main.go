package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/salonbook/salonbook/libs/config"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/libs/events"
	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/libs/kafkax"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/libs/runtime"
	"github.com/salonbook/salonbook/services/notification-service/internal/alerts"
	"github.com/salonbook/salonbook/services/notification-service/internal/consumer"
	"github.com/salonbook/salonbook/services/notification-service/internal/email"
	"github.com/salonbook/salonbook/services/notification-service/internal/inbox"
	"github.com/salonbook/salonbook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.DefaultPoolConfig())
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	loc, err := time.LoadLocation(config.String("SALON_TIMEZONE", "UTC"))
	if err != nil {
		panic(err)
	}

	var sender email.Sender
	switch provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")); provider {
	case "sendgrid":
		apiKey, err := config.RequiredString("SENDGRID_API_KEY")
		if err != nil {
			panic(err)
		}
		sender = email.NewSendGridSender(apiKey, config.String("EMAIL_FROM_NAME", "Salon bookings"), config.String("EMAIL_FROM", "no-reply@salonbook.local"))
	default:
		sender = email.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.Int("SMTP_PORT", 1025),
			config.String("SMTP_USERNAME", ""),
			config.String("SMTP_PASSWORD", ""),
			config.String("EMAIL_FROM", "no-reply@salonbook.local"),
		)
	}

	recipients := config.List("OPERATOR_EMAILS", "")
	if len(recipients) == 0 {
		logger.Warn("OPERATOR_EMAILS is empty; alerts are consumed but not sent")
	}
	handler := alerts.New(sender, storage.NewRepository(pool), recipients, loc, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", events.TopicAppointmentCreated),
	}, handler.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, logger, srv, 10*time.Second)
}
