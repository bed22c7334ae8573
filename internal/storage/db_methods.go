package storage

import (
	"blindchat/backend/internal/models"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Tables lists every model persisted by the store, parents first.
var Tables = []any{
	&models.User{},
	&models.UserInterest{},
	&models.Session{},
	&models.Message{},
	&models.TypingRecord{},
	&models.ConnectionRequest{},
	&models.PartnerEdge{},
}

// OpenDB connects to the configured database. driver is one of postgres,
// mysql or sqlite.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite serialises writers; one connection avoids "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema from the models. The versioned
// SQL migrations in RunMigrations are used for PostgreSQL deployments.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Tables...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Println("INFO: Database schema is up to date.")
	return nil
}
