package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnrollmentStatus is the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentDropped   EnrollmentStatus = "DROPPED"
)

// EnrollmentSource records which path created the enrollment
type EnrollmentSource string

const (
	SourceFree     EnrollmentSource = "FREE"
	SourceOnline   EnrollmentSource = "ONLINE"
	SourcePhysical EnrollmentSource = "PHYSICAL"
)

// Enrollment tracks a user's enrollment in a course with progress.
// At most one non-dropped row exists per (user_id, course_id); the partial
// unique index is created in database.Migrate.
type Enrollment struct {
	gorm.Model
	UserID          uint             `json:"user_id" gorm:"index;not null"`
	CourseID        uint             `json:"course_id" gorm:"index;not null"`
	Status          EnrollmentStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	Source          EnrollmentSource `json:"source" gorm:"type:varchar(20)"`
	PaymentVerified bool             `json:"payment_verified" gorm:"default:false"`
	Progress        int              `json:"progress" gorm:"default:0"` // Completion percentage (0-100)
	EnrolledAt      time.Time        `json:"enrolled_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
	DroppedAt       *time.Time       `json:"dropped_at"`
	ApprovedBy      *uint            `json:"approved_by"`
	PhysicalDetails datatypes.JSON   `json:"physical_details,omitempty"`
}

// IsLive reports whether the enrollment grants access to the course.
func (e *Enrollment) IsLive() bool {
	return e.Status == EnrollmentActive || e.Status == EnrollmentCompleted
}
