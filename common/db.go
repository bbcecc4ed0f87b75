package common

import (
	"context"
	"fmt"
	"log"

	"messageboard/config"
	"messageboard/store"
)

// ConnectStore opens the backend selected by cfg.DBDriver.
func ConnectStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMongo:
		log.Println("attemptConnectStore: mongo at", cfg.MongoURI, "db", cfg.MongoDB)
		s, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		log.Println("connected to mongo")
		return s, nil
	case config.DriverSQLite:
		log.Println("attemptConnectStore: sqlite_db", cfg.SQLiteDB)
		s, err := store.OpenSQLite(cfg.SQLiteDB)
		if err != nil {
			return nil, err
		}
		log.Println("opened sqlite db at:", cfg.SQLiteDB)
		return s, nil
	}
	return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
}
