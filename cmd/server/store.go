package main

import (
	"errors"
	"fmt"

	"github.com/fuomag9/notionsocial/internal/database"
	"github.com/fuomag9/notionsocial/internal/secrets"
	"github.com/fuomag9/notionsocial/internal/store"
	"github.com/fuomag9/notionsocial/internal/store/memstore"
)

var errMemoryStore = errors.New("command needs DATABASE_TYPE=postgres")

// openStore returns the configured store and a function releasing it.
func (a *app) openStore() (store.Store, func(), error) {
	if a.cfg.Database.Type == "memory" {
		a.log.Warn().Msg("Using the in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	box, err := secrets.NewBox(a.cfg.TokenEncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	if err := database.RunMigrations(a.cfg.Database, a.log); err != nil {
		return nil, nil, err
	}

	db, err := database.Connect(a.cfg.Database, a.log)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	closer := func() {
		if err := sqlDB.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close database")
		}
	}
	return database.NewStore(db, box), closer, nil
}
