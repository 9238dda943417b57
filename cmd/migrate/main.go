package main

import (
	"errors"
	"flag"
	"os"

	"peb_market/internal/pkg/config"
	"peb_market/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	source := flag.String("source", "file://migrations", "migration source URL")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	log, err := logger.New("peb-market-migrate", cfg.App.Env, cfg.App.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	m, err := migrate.New(*source, cfg.Database.URL())
	if err != nil {
		log.Fatal("Failed to open migrations", zap.Error(err))
	}
	defer m.Close()

	if *down {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("Rollback failed", zap.Error(err))
		}
		log.Info("Rollback successful")
		return
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// dirty 状态：强制回到上一个成功的版本后重试
		var dirty migrate.ErrDirty
		if !errors.As(err, &dirty) {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Warn("Database is dirty, forcing previous version", zap.Int("version", dirty.Version))
		prev := dirty.Version - 1
		if prev < 1 {
			prev = database.NilVersion
		}
		if err := m.Force(prev); err != nil {
			log.Fatal("Failed to force version", zap.Error(err))
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("Migration failed", zap.Error(err))
		}
	}

	version, dirty, _ := m.Version()
	log.Info("Migration successful", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
