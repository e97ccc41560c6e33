package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/pairs/apps/go-server/assets"
	"github.com/robalobadob/pairs/apps/go-server/internal/daily"
	"github.com/robalobadob/pairs/apps/go-server/internal/history"
	"github.com/robalobadob/pairs/apps/go-server/internal/httpserver"
	"github.com/robalobadob/pairs/apps/go-server/internal/store"
	"github.com/robalobadob/pairs/apps/go-server/internal/tokens"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := tokens.Init(cfg.TokensFile); err != nil {
		log.Fatal().Err(err).Str("file", cfg.TokensFile).Msg("failed to load token catalog")
	}

	db, err := history.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer db.Close()
	migrations, err := assets.Migrations()
	if err != nil {
		log.Fatal().Err(err).Msg("load migrations")
	}
	if err := history.Migrate(db, migrations); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	srv := httpserver.New(store.NewMemoryStore(), history.NewStore(db), httpserver.Config{
		Tokens:          tokens.Default(),
		DefaultAttempts: cfg.DefaultAttempts,
		ResolveDelay:    cfg.ResolveDelay,
		JWTSecret:       cfg.JWTSecret,
		JWTExpiry:       cfg.JWTExpiry,
		CookieName:      cfg.CookieName,
		ClientOrigin:    cfg.ClientOrigin,
		Production:      cfg.Production,
		Daily:           daily.NewStore(db),
		DailySalt:       cfg.DailySalt,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("port", cfg.Port).
		Int("tokens", tokens.Default().Len()).
		Dur("resolveDelay", cfg.ResolveDelay).
		Msg("starting go-server")
	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
