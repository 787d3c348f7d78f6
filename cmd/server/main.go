package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/showbook-chat/internal/bot"
	"github.com/iliyamo/showbook-chat/internal/cancellation"
	"github.com/iliyamo/showbook-chat/internal/checkin"
	"github.com/iliyamo/showbook-chat/internal/config"
	"github.com/iliyamo/showbook-chat/internal/database"
	"github.com/iliyamo/showbook-chat/internal/dedup"
	"github.com/iliyamo/showbook-chat/internal/handler"
	"github.com/iliyamo/showbook-chat/internal/jobs"
	"github.com/iliyamo/showbook-chat/internal/logger"
	"github.com/iliyamo/showbook-chat/internal/queue"
	"github.com/iliyamo/showbook-chat/internal/ratelimit"
	"github.com/iliyamo/showbook-chat/internal/repository"
	"github.com/iliyamo/showbook-chat/internal/reservation"
	"github.com/iliyamo/showbook-chat/internal/router"
	"github.com/iliyamo/showbook-chat/internal/service"
	"github.com/iliyamo/showbook-chat/internal/session"
	"github.com/iliyamo/showbook-chat/internal/ticket"
	"github.com/iliyamo/showbook-chat/internal/whatsapp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg := config.Load()
	bookingCfg := config.LoadBookingConfig()
	waCfg := config.LoadWhatsAppConfig()
	rlCfg := config.LoadRateLimitConfig()
	ticketCfg, err := config.LoadTicketConfig()
	if err != nil {
		log.Fatalf("ticket config: %v", err)
	}

	logg := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logg)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	var (
		sessions session.Store
		guard    dedup.Guard
	)
	if rdb != nil {
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, bookingCfg.SessionTTL)
		guard = dedup.NewRedisGuard(rdb, bookingCfg.DedupWindow)
	} else {
		logg.Warn("redis unavailable: sessions and dedup are process-local; run a single instance only")
		sessions = session.NewMemoryStore(bookingCfg.SessionTTL)
		guard = dedup.NewMemoryGuard(bookingCfg.DedupWindow)
	}

	tx := database.NewTransactor(db)
	shows := repository.NewShowRepo(db)
	seats := repository.NewSeatRepo(db)
	bookings := repository.NewBookingRepo(db)
	auditLogs := repository.NewBookingLogRepo(db)

	engine := reservation.NewEngine(seats,
		reservation.WithHold(bookingCfg.SeatHold),
		reservation.WithLogger(logg))

	signer := ticket.NewSigner(cfg.TicketSecret)
	renderer, err := ticket.NewQRRenderer(ticketCfg)
	if err != nil {
		log.Fatalf("ticket renderer: %v", err)
	}
	issuer := ticket.NewIssuer(signer, renderer)
	publisher := service.NewPublisher(cfg.RabbitURL, logg)

	canceller := cancellation.NewService(cancellation.Deps{
		Tx:            tx,
		Shows:         shows,
		Bookings:      bookings,
		Cancellations: repository.NewCancellationRepo(db),
		Logs:          auditLogs,
		Engine:        engine,
		Tickets:       issuer,
		Events:        publisher,
		Logger:        logg,
	})
	limiter := ratelimit.New(rlCfg, rdb)

	chat := bot.New(bot.Deps{
		Sessions:  sessions,
		Guard:     guard,
		Limiter:   limiter,
		Tx:        tx,
		Shows:     shows,
		Inventory: seats,
		Bookings:  bookings,
		Payments:  repository.NewPaymentRepo(db),
		Logs:      auditLogs,
		Engine:    engine,
		Tickets:   issuer,
		Cancel:    canceller,
		Events:    publisher,
		Messenger: whatsapp.NewClient(waCfg, logg),
		Config:    bookingCfg,
		Logger:    logg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.RabbitURL, filepath.Join("logs", "booking.log"), logg)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error("booking consumer stopped", "error", err)
		}
	}()

	reconciler := jobs.NewReconciler(engine, bookings, auditLogs, tx, bookingCfg.ReconcileInterval, logg)
	startReconciler(ctx, logg, bookingCfg.ReconcilerMode, rdb, reconciler)

	webhook := handler.NewWebhookHandler(waCfg.VerifyToken, chat, 30*time.Second, logg)
	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db})
	router.RegisterWebhook(e, webhook)
	router.RegisterTickets(e, &handler.TicketHandler{
		Checkin: checkin.NewService(tx, bookings, auditLogs, signer, logg),
	}, ticketCfg.QRDir, limiter, rlCfg.KeyStrategy)

	addr := ":" + cfg.Port
	go func() {
		logg.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logg.Warn("http shutdown", "error", err)
	}
	webhook.Wait()
	logg.Info("server stopped")
}

// startReconciler runs the expiry sweep in process or, in asynq mode,
// through a Redis-backed scheduler shared by every instance.
func startReconciler(ctx context.Context, logg *slog.Logger, mode string, rdb *redis.Client, r *jobs.Reconciler) {
	if mode == "asynq" {
		if rdb == nil {
			logg.Warn("asynq reconciler needs redis; falling back to in-process ticker")
		} else {
			opt := rdb.Options()
			redisOpt := asynq.RedisClientOpt{
				Addr:      opt.Addr,
				Password:  opt.Password,
				DB:        opt.DB,
				TLSConfig: opt.TLSConfig,
			}
			go func() {
				if err := jobs.RunAsynq(ctx, redisOpt, r); err != nil {
					logg.Error("asynq reconciler stopped", "error", err)
				}
			}()
			return
		}
	}
	go r.Run(ctx)
}
