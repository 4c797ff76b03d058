package repositories

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitTest swaps the global Postgres handle for an in-memory sqlite database
// so service tests run without external infrastructure. Redis stays nil;
// tests cover redis-backed paths through the counter/queue interfaces.
func InitTest() error {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	// A :memory: database exists per connection; keep the pool at one so
	// every query sees the same database.
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := autoMigrateInOrder(db); err != nil {
		return err
	}

	DBS.Postgres = db
	return nil
}
