package bootstrap

import (
	"os"
	"time"

	"sharehouse-backend/internal/config"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// New creates the Fiber app for Vercel serverless (api handler imports this package, not internal).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ConfigureLogging(cfg)
	app, db, _, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(cfg, db); err != nil {
		return nil, err
	}
	return app, nil
}

// ConfigureLogging sets the global zerolog level from LOG_LEVEL. Outside
// production logs go to a console writer.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// Migrate runs AutoMigrate when AUTO_MIGRATE is set.
func Migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.AutoMigrate || db == nil {
		return nil
	}
	if err := database.AutoMigrate(db); err != nil {
		return err
	}
	log.Info().Msg("schema migrated")
	return nil
}
