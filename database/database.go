package database

import (
	"fmt"
	"log"

	"learnpay/config"
	"learnpay/models"
	courseModels "learnpay/models/course"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DbInstance struct holds the database connection instance
type DbInstance struct {
	Db *gorm.DB
}

// Database is the global database instance
var Database DbInstance

// activeEnrollmentIndex enforces at most one non-dropped enrollment per
// (user, course). Both PostgreSQL and SQLite support partial indexes.
const activeEnrollmentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_active_pair
	ON enrollments (user_id, course_id)
	WHERE status <> 'DROPPED' AND deleted_at IS NULL`

// ConnectDb establishes a connection to PostgreSQL
func ConnectDb(cfg *config.Config) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
	)

	// TranslateError turns unique violations into gorm.ErrDuplicatedKey, which
	// the enrollment and certificate services rely on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	// Set up connection pooling
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get database instance: %v", err)
	}

	sqlDB.SetMaxOpenConns(10)   // Maximum open connections
	sqlDB.SetMaxIdleConns(5)    // Maximum idle connections
	sqlDB.SetConnMaxLifetime(0) // No timeout

	log.Println("Running Migrations...")
	if err := Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully.")

	// Save database instance globally
	Database = DbInstance{Db: db}

	return db
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&courseModels.Course{},
		&courseModels.CourseContent{},
		&courseModels.ContentCompletion{},
		&courseModels.Enrollment{},
		&courseModels.EnrollmentIntent{},
		&courseModels.CertificateRequest{},
		&courseModels.Certificate{},
		&models.Payment{},
		&models.OutboxEvent{},
	)
	if err != nil {
		return err
	}

	return db.Exec(activeEnrollmentIndex).Error
}
