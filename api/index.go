// Package api exposes the exercise service as a single serverless HTTP function.
package api

import (
	"context"
	"net/http"
	"os"
	"sync"

	"timed-exercise-service/internal/config"
	"timed-exercise-service/internal/logger"
	"timed-exercise-service/internal/server"
)

var (
	once     sync.Once
	handler  http.Handler
	buildErr error
)

// Handler is the function entry point. The service is assembled on first use and
// reused by every later invocation of the same instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			buildErr = err
			return
		}
		log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
		srv, err := server.Build(context.Background(), cfg, log)
		if err != nil {
			log.Error().Err(err).Msg("build exercise service failed")
			buildErr = err
			return
		}
		handler = srv.Handler
	})
	if buildErr != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(w, r)
}
