package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/auth"
	"github.com/robalobadob/family-connections/internal/cache"
	"github.com/robalobadob/family-connections/internal/config"
	"github.com/robalobadob/family-connections/internal/events"
	"github.com/robalobadob/family-connections/internal/family"
	"github.com/robalobadob/family-connections/internal/httpserver"
	"github.com/robalobadob/family-connections/internal/invite"
	"github.com/robalobadob/family-connections/internal/leaderboard"
	"github.com/robalobadob/family-connections/internal/puzzle"
	"github.com/robalobadob/family-connections/internal/seed"
	"github.com/robalobadob/family-connections/internal/storage"
	"github.com/robalobadob/family-connections/internal/store"
	"github.com/robalobadob/family-connections/internal/websocket"
	"github.com/robalobadob/family-connections/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Auth.JWTSecret == config.DevSecret {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}
	if cfg.Auth.ExposeLinks {
		log.Warn().Msg("AUTH_EXPOSE_LINKS is on, sign-in links are returned to the requester")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	users := storage.NewUserRepository(db)
	families := storage.NewFamilyRepository(db)
	puzzles := storage.NewPuzzleRepository(db)

	if cfg.Seed.Demo {
		data, err := seed.Load(cfg.Seed.File)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, data, users, families, puzzles, time.Now()); err != nil {
			return err
		}
	}

	// Optional event stream; without Kafka events are only logged.
	var (
		completed leaderboard.Publisher = events.LogPublisher{}
		redeemed  invite.Publisher      = events.LogPublisher{}
	)
	if cfg.Kafka.Enabled {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		kp := events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		defer kp.Close()
		completed, redeemed = kp, kp
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka events enabled")
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	lbOpts := []leaderboard.Option{leaderboard.WithPublisher(completed), leaderboard.WithBroadcaster(hub)}
	if cfg.Redis.Enabled {
		lc, err := cache.NewLeaderboard(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return err
		}
		defer lc.Close()
		lbOpts = append(lbOpts, leaderboard.WithCache(lc))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis leaderboard cache enabled")
	}

	invites := invite.NewService(storage.NewInviteRepository(db), cfg.Server.BaseURL).
		WithPublisher(redeemed).
		WithTokenBytes(cfg.Invites.TokenBytes)
	sessions := store.NewMemoryStore()

	sweeper := worker.NewSweeper(invites, sessions, worker.Config{
		Interval:       cfg.Invites.SweepInterval,
		SessionMaxIdle: cfg.Sessions.MaxIdle,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := httpserver.New(httpserver.Services{
		Auth: auth.NewService(users, auth.Config{
			Secret:       cfg.Auth.JWTSecret,
			BaseURL:      cfg.Server.BaseURL,
			SessionTTL:   cfg.Auth.SessionTTL,
			MagicLinkTTL: cfg.Auth.MagicLinkTTL,
			CodeTTL:      cfg.Auth.CodeTTL,
			AdminEmails:  cfg.Auth.AdminEmails,
		}),
		Families:    family.NewService(families),
		Invites:     invites,
		Puzzles:     puzzle.NewService(puzzles),
		Leaderboard: leaderboard.NewService(storage.NewResultRepository(db), lbOpts...),
		Sessions:    sessions,
		Hub:         hub,
	}, httpserver.Options{
		BaseURL:        cfg.Server.BaseURL,
		ClientOrigins:  cfg.Server.ClientOrigins,
		CookieName:     cfg.Auth.CookieName,
		SecureCookies:  cfg.Auth.SecureCookies,
		RequestTimeout: cfg.Server.RequestTimeout,
		ExposeLinks:    cfg.Auth.ExposeLinks,
	})

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("starting family-connections server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
