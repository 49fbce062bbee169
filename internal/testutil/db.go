// Package testutil provides an in-memory database and a scriptable payment
// provider for service and handler tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"learnpay/database"
	"learnpay/models"
	courseModels "learnpay/models/course"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database migrated exactly like
// production, including the partial unique enrollment index.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// One connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a student.
func CreateUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "Student", Email: email, Role: models.RoleUser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateAdmin inserts an admin user.
func CreateAdmin(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Name: "Admin", Email: email, Role: models.RoleAdmin}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return user
}

// CreateCourse inserts an active course. An empty price makes it free.
func CreateCourse(t *testing.T, db *gorm.DB, price, currency string) courseModels.Course {
	t.Helper()
	course := courseModels.Course{
		Title:       "Course " + uuid.NewString()[:8],
		Status:      "ACTIVE",
		Currency:    currency,
		IsPublished: true,
	}
	if price != "" {
		p := decimal.RequireFromString(price)
		course.Price = &p
	}
	if err := db.Create(&course).Error; err != nil {
		t.Fatalf("create course: %v", err)
	}
	return course
}

// CreateContent inserts n published content items for courseID.
func CreateContent(t *testing.T, db *gorm.DB, courseID uint, n int) []courseModels.CourseContent {
	t.Helper()
	items := make([]courseModels.CourseContent, 0, n)
	for i := 0; i < n; i++ {
		item := courseModels.CourseContent{
			CourseID:    courseID,
			Title:       fmt.Sprintf("Lesson %d", i+1),
			OrderIndex:  i,
			IsPublished: true,
		}
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("create content: %v", err)
		}
		items = append(items, item)
	}
	return items
}

// CreateEnrollment inserts an enrollment in the given state.
func CreateEnrollment(t *testing.T, db *gorm.DB, userID, courseID uint, status courseModels.EnrollmentStatus) courseModels.Enrollment {
	t.Helper()
	e := courseModels.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     status,
		Source:     courseModels.SourcePhysical,
		EnrolledAt: time.Now(),
	}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return e
}

// CountRows returns the number of rows of model matching the optional condition.
func CountRows(t *testing.T, db *gorm.DB, model any, conds ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if len(conds) > 0 {
		q = q.Where(conds[0], conds[1:]...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
