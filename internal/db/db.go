package db

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

// Open connects to Postgres. Duplicate-key errors are translated to
// gorm.ErrDuplicatedKey so repositories can detect them portably.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	conn, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&User{},
		&Plan{},
		&Promocode{},
		&PromocodeActivation{},
		&Subscription{},
		&Transaction{},
		&PaymentGateway{},
		&WebhookLog{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isPostgres(conn *gorm.DB) bool {
	return conn.Dialector.Name() == "postgres"
}
