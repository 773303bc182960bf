package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"timed-exercise-service/internal/catalog"
	"timed-exercise-service/internal/infra/postgres"
	"timed-exercise-service/internal/infra/postgres/migrations"
	infraredis "timed-exercise-service/internal/infra/redis"
)

// NewSeedCmd populates an empty exercise catalog with the built-in exercises.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the exercise catalog when it is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if _, err := migrations.Apply(ctx, cfg.Postgres.URL); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	exercises := catalog.Defaults()
	store := postgres.NewExerciseStore(pool)
	seeded, err := catalog.Seed(ctx, store, exercises, log)
	if err != nil || !seeded || cfg.Redis.Addr == "" {
		return err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	slugs := make([]string, 0, len(exercises))
	for _, ex := range exercises {
		slugs = append(slugs, ex.Slug)
	}
	if err := infraredis.NewExerciseRepository(client, store, 0).Invalidate(ctx, slugs...); err != nil {
		log.Warn().Err(err).Msg("exercise cache invalidation failed")
	}
	return nil
}
