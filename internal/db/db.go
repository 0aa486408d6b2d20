package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"booth-kiosk/internal/logger"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewDatabase opens the Postgres database holding the payment journal.
func NewDatabase(dsn string) (*sql.DB, error) {
	return newDatabaseWithDriver(dsn, "postgres")
}

func newDatabaseWithDriver(dsn, driver string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.L().Info("Database connection established", zap.String("driver", driver))
	return db, nil
}
