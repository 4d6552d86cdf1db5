package database

import (
	"fmt"
	"log"
	"time"

	"github.com/amlguard/compliance-api/config"
	"github.com/amlguard/compliance-api/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM() (*gorm.DB, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}

	// Build DSN (Data Source Name)
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnv.DB_HOST,
		getEnv.DB_USER_NAME,
		getEnv.DB_PASSWORD,
		getEnv.DB_NAME,
		getEnv.DB_PORT,
		getEnv.DB_SSL_MODE,
	)

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if getEnv.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	// Open GORM connection. TranslateError lets the store detect unique
	// violations via gorm.ErrDuplicatedKey instead of driver-specific codes.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            true,
		TranslateError:         true,
	})
	if err != nil {
		log.Println("Unable to connect to PostgreSQL with GORM:", err)
		return nil, err
	}

	// Get underlying *sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Successfully connected to PostgreSQL Database with GORM.")

	return db, nil
}

// Migrate runs the AutoMigrate for all models
func Migrate(db *gorm.DB) error {
	log.Println("Running GORM AutoMigrate for all models...")

	err := db.AutoMigrate(
		&model.User{},
		&model.APIKey{},
		&model.UsageEvent{},
		&model.AuditLog{},
	)
	if err != nil {
		log.Println("Error running AutoMigrate:", err)
		return err
	}

	log.Println("GORM AutoMigrate completed successfully!")
	return nil
}

// Close closes the underlying database connection
func Close(db *gorm.DB) error {
	log.Println("Closing GORM PostgreSQL connection...")
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck verifies the database connection is alive
func HealthCheck(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
