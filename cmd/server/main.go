package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"elcedro/backend/internal/cache"
	"elcedro/backend/internal/catalog"
	"elcedro/backend/internal/config"
	"elcedro/backend/internal/db"
	"elcedro/backend/internal/domain"
	httpapi "elcedro/backend/internal/http"
	"elcedro/backend/internal/ingest"
	"elcedro/backend/internal/logger"
	"elcedro/backend/internal/prefs"
	"elcedro/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", false)
		fallback.Fatal().Err(err).Msg("config error")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	areas, err := config.LoadAreas(cfg.AreasPath, domain.DefaultFloorAreas)
	if err != nil {
		log.Fatal().Err(err).Msg("areas config error")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog error")
	}
	if cat.Len() > 0 {
		log.Info().Int("entries", cat.Len()).Msg("family catalog loaded")
	} else {
		log.Warn().Msg("no family catalog; families resolve by pass-through")
	}

	var views prefs.Store = prefs.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database error")
		}
		defer pool.Close()
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migration error")
		}
		pg := prefs.NewPostgresStore(pool)
		if err := pg.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("saved view seed error")
		}
		views = pg
	}

	var qc cache.QueryCache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis error")
		}
		qc = cache.NewRedis(client)
	}

	loader := ingest.NewLoader(cat, log)
	svc := service.New(loader, cfg.DataDir, qc, cfg.CacheTTL, areas, views, log)
	if _, err := svc.Refresh(ctx); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("initial data load failed")
	}

	handler := httpapi.NewHandler(svc)
	router := httpapi.NewRouter(handler, log)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("force close failed")
		}
	}
}
