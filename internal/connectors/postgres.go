package connectors

import (
	"context"
	"fmt"

	"github.com/rapidaai/mesh/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresConnector hands out the *gorm.DB for a context the way the
// teacher's connectors.PostgresConnector does in callcontext/store.go.
type PostgresConnector interface {
	DB(ctx context.Context) *gorm.DB
	Close() error
}

type postgresConnector struct {
	db *gorm.DB
}

// NewPostgresConnector opens a gorm connection from the resolved config.
func NewPostgresConnector(cfg config.PostgresConfig) (PostgresConnector, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnection)
	sqlDB.SetMaxIdleConns(cfg.MaxIdealConnection)
	return &postgresConnector{db: db}, nil
}

// NewPostgresConnectorFromDB wraps an existing *gorm.DB, used by tests to
// inject a sqlmock-backed connection.
func NewPostgresConnectorFromDB(db *gorm.DB) PostgresConnector {
	return &postgresConnector{db: db}
}

func (c *postgresConnector) DB(ctx context.Context) *gorm.DB { return c.db.WithContext(ctx) }

func (c *postgresConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
