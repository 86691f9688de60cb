package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/salonbook/salonbook/libs/auth"
	"github.com/salonbook/salonbook/libs/config"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/libs/kafkax"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/libs/runtime"
	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/channel"
	"github.com/salonbook/salonbook/services/booking-service/internal/handlers"
	"github.com/salonbook/salonbook/services/booking-service/internal/notify"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
	"github.com/salonbook/salonbook/services/booking-service/internal/store"
	"github.com/salonbook/salonbook/services/booking-service/internal/store/memstore"
	"github.com/salonbook/salonbook/services/booking-service/internal/sweeper"
	"github.com/salonbook/salonbook/services/booking-service/internal/telegrambot"
	"github.com/salonbook/salonbook/services/booking-service/internal/verification"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}
	loc, err := loadLocation(config.String("SALON_TIMEZONE", "UTC"))
	if err != nil {
		panic(err)
	}

	var (
		st     store.Store
		checks []runtime.ReadyCheck
	)
	switch driver := config.String("STORAGE_DRIVER", "postgres"); driver {
	case "memory":
		mem := memstore.New()
		seedMemory(mem, cfg.Seed)
		st = mem
		logger.Warn("using in-memory storage; bookings are lost on restart")
	case "postgres":
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
		st = storage.NewStore(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	default:
		panic(fmt.Errorf("unknown STORAGE_DRIVER %q", driver))
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	now := time.Now
	policy := cfg.Verification
	sessions := verification.NewSessions(policy, now)
	checker := availability.NewChecker(policy.ClockSkew, now)

	deps := verification.Deps{
		Store:       st,
		Sessions:    sessions,
		Checker:     checker,
		SMS:         newSMSSender(logger),
		Limiter:     newLimiter(rdb, policy.SendLimit, policy.SendWindow, "verification-send"),
		Logger:      logger,
		Now:         now,
		SendTimeout: config.Duration("SEND_TIMEOUT", verification.DefaultSendTimeout),
	}

	var bot *tgbotapi.BotAPI
	if token := config.String("TELEGRAM_BOT_TOKEN", ""); token != "" {
		bot, err = tgbotapi.NewBotAPI(token)
		if err != nil {
			logger.Error("telegram bot init failed; channel disabled", "err", err)
		} else {
			deps.Telegram = channel.NewTelegramSender(bot, bot.Self.UserName)
		}
	}

	if clientID := config.String("GOOGLE_CLIENT_ID", ""); clientID != "" {
		signer, err := auth.NewStateSigner(config.String("OAUTH_STATE_SECRET", ""), service)
		if err != nil {
			panic(err)
		}
		keys := auth.NewJWKSClient(config.String("GOOGLE_JWKS_URL", auth.GoogleJWKSURL), config.Duration("GOOGLE_JWKS_TTL", time.Hour))
		deps.OAuth = channel.NewGoogleOAuth(
			clientID,
			config.String("GOOGLE_CLIENT_SECRET", ""),
			config.String("GOOGLE_REDIRECT_URL", ""),
			auth.NewIDTokenVerifier(keys, clientID),
		)
		deps.State = signer
	}
	verifier := verification.NewService(deps)

	var notifiers []notify.Notifier
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		notifiers = append(notifiers, notify.NewKafkaNotifier(writer))
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if chatID := int64(config.Int("TELEGRAM_OPERATOR_CHAT_ID", 0)); bot != nil && chatID != 0 {
		notifiers = append(notifiers, notify.NewTelegramNotifier(bot, chatID, loc))
	}
	dispatcher := notify.NewDispatcher(logger, notify.Config{
		QueueSize: config.Int("NOTIFY_QUEUE_SIZE", 256),
		Workers:   config.Int("NOTIFY_WORKERS", 2),
		Timeout:   config.Duration("NOTIFY_TIMEOUT", 10*time.Second),
	}, notifiers...)
	materializer := booking.NewMaterializer(st, sessions, checker, dispatcher, logger, now)

	sweep := sweeper.New(st, sessions, logger)
	go func() {
		if err := sweep.Run(ctx, config.String("SWEEP_SCHEDULE", "@every 15m")); err != nil {
			logger.Error("session sweeper stopped", "err", err)
		}
	}()

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(handlers.Deps{
		Verifier:     verifier,
		Materializer: materializer,
		Store:        st,
		Checker:      checker,
		Logger:       logger,
		Config: handlers.Config{
			Location:        loc,
			DayStart:        config.Duration("SALON_DAY_START", 9*time.Hour),
			DayEnd:          config.Duration("SALON_DAY_END", 20*time.Hour),
			SlotStep:        config.Duration("SLOT_STEP", 30*time.Minute),
			GoogleReturnURL: config.String("GOOGLE_RETURN_URL", ""),
		},
		Now: now,
	}).Register(mux)

	if bot != nil {
		tg := telegrambot.NewHandler(bot, verifier, logger)
		if secret := config.String("TELEGRAM_WEBHOOK_SECRET", ""); secret != "" {
			mux.Handle("POST /api/v1/telegram/webhook", tg.Webhook(secret))
		} else {
			go tg.Poll(ctx, bot)
		}
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicyFromEnv()),
		httpx.LimitMiddleware(
			newLimiter(rdb, config.Int("HTTP_RATE_LIMIT", 120), config.Duration("HTTP_RATE_WINDOW", time.Minute), "http"),
			nil, logger, true,
		),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 64<<10))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, logger, srv, 10*time.Second)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Close(closeCtx); err != nil {
		logger.Warn("notification queue not drained", "err", err)
	}
}

// newLimiter shares counters across replicas when Redis is configured.
func newLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) httpx.Limiter {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, limit, window, prefix)
	}
	return httpx.NewRateLimiter(limit, window)
}

func newSMSSender(logger *slog.Logger) verification.SMSSender {
	switch provider := config.String("SMS_PROVIDER", "noop"); provider {
	case "twilio":
		return channel.NewTwilioSender(
			config.String("TWILIO_ACCOUNT_SID", ""),
			config.String("TWILIO_AUTH_TOKEN", ""),
			config.String("TWILIO_FROM", ""),
		)
	case "webhook":
		return channel.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	case "noop":
		logger.Warn("sms provider is noop; codes are logged, not delivered")
		return channel.NewNoopSender(logger)
	case "disabled", "":
		return nil
	default:
		logger.Error("unknown SMS_PROVIDER; sms channel disabled", "provider", provider)
		return nil
	}
}
