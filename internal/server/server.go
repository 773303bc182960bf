// Package server assembles the exercise service from configuration.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"timed-exercise-service/internal/app"
	"timed-exercise-service/internal/catalog"
	"timed-exercise-service/internal/config"
	"timed-exercise-service/internal/infra/memory"
	"timed-exercise-service/internal/infra/postgres"
	"timed-exercise-service/internal/infra/postgres/migrations"
	infraredis "timed-exercise-service/internal/infra/redis"
	"timed-exercise-service/internal/notify"
	transport "timed-exercise-service/internal/transport/http"
	"timed-exercise-service/internal/view"
)

// Server is the assembled service.
type Server struct {
	Handler http.Handler
	Engine  *app.Engine

	closers []func(ctx context.Context) error
}

// Build wires storage, the engine and the HTTP surface. Postgres and Redis are used
// when configured; otherwise everything lives in process memory.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{}
	checks := map[string]transport.HealthCheck{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func(context.Context) error { return redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if _, err := migrations.Apply(ctx, cfg.Postgres.URL); err != nil {
			s.Close(ctx)
			return nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { pool.Close(); return nil })
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}

	sessionTTL := config.TTLDuration(cfg.Session.TTL, transport.DefaultSessionTTL)
	duration := config.TTLDuration(cfg.Exercise.Duration, app.DefaultExerciseDuration)
	cacheTTL := config.TTLDuration(cfg.Exercise.CacheTTL, 10*time.Minute)

	var (
		loader      memory.ExerciseLoader
		seedTarget  catalog.Store
		submissions app.SubmissionRepository
	)
	if pool != nil {
		store := postgres.NewExerciseStore(pool)
		loader, seedTarget = store, store
		submissions = postgres.NewSubmissionStore(pool)
	} else {
		store := memory.NewStaticExerciseLoader(nil)
		loader, seedTarget = store, store
		submissions = memory.NewSubmissionStore()
	}
	if cfg.Exercise.Seed {
		if _, err := catalog.Seed(ctx, seedTarget, catalog.Defaults(), log); err != nil {
			s.Close(ctx)
			return nil, err
		}
	}

	var (
		exercises app.ExerciseRepository
		sessions  app.SessionRepository
		claims    app.ClaimStore
	)
	// A claim outlives the attempt window so a late trigger on another worker still loses.
	claimTTL := duration + sessionTTL
	if redisClient != nil {
		exercises = infraredis.NewExerciseRepository(redisClient, loader, cacheTTL)
		sessions = infraredis.NewSessionStore(redisClient, sessionTTL)
		claims = infraredis.NewClaimStore(redisClient, claimTTL)
	} else {
		exercises = memory.NewExerciseRepository(loader, cacheTTL)
		sessions = memory.NewSessionStore(sessionTTL)
		claims = memory.NewClaimStore(claimTTL)
	}

	var sender notify.Sender
	if cfg.Webhook.URL != "" {
		sender = notify.NewWebhookClient(notify.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Timeout: config.TTLDuration(cfg.Webhook.Timeout, 10*time.Second),
			Logger:  log,
		})
	}
	dispatcher := notify.NewDispatcher(sender, 30*time.Second, location(cfg.Webhook.Timezone, log), log)
	s.closers = append([]func(context.Context) error{dispatcher.Close}, s.closers...)

	s.Engine = app.NewEngine(app.Deps{
		Exercises:   exercises,
		Submissions: submissions,
		Sessions:    sessions,
		Registry:    memory.NewAttemptRegistry(),
		Claims:      claims,
		Notifier:    dispatcher,
		Logger:      log,
		Duration:    duration,
	})

	pages, err := view.New()
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	secret := cfg.Session.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("session secret not configured, using a random per-process secret")
	}
	cookies := transport.NewCookieSessions(secret, sessionTTL, cfg.Session.Secure)

	s.Handler = transport.NewHandler(s.Engine, cookies, pages, log, checks).Routes()
	return s, nil
}

// Close drains pending notifications and releases connections.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func location(name string, log zerolog.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("timezone", name).Msg("unknown webhook timezone, using UTC")
		return time.UTC
	}
	return loc
}
