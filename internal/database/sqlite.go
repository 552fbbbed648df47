package database

import (
	"fmt"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSource establishes a connection to the source identity store. The
// engine only reads from it; the schema is owned by the source system and is
// never migrated here.
func OpenSource(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if !db.Migrator().HasTable(&source.User{}) {
		return nil, fmt.Errorf("source store at %q is missing table %q", path, source.User{}.TableName())
	}

	if logger != nil {
		logger.Info("source store opened", zap.String("path", path))
	}
	return db, nil
}

// OpenTarget establishes a connection to the target identity store and
// ensures its user and account tables exist.
func OpenTarget(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&target.User{}, &target.Account{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("target store initialized", zap.String("path", path))
	}
	return db, nil
}

func open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
