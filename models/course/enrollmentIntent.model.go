package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const IntentKindPhysical = "PHYSICAL"

// EnrollmentIntent remembers an in-progress offline enrollment across a
// redirect. It is consumed (deleted) by the handler that confirms it.
type EnrollmentIntent struct {
	gorm.Model
	UserID    uint           `json:"user_id" gorm:"uniqueIndex:idx_enrollment_intent_pair;not null"`
	CourseID  uint           `json:"course_id" gorm:"uniqueIndex:idx_enrollment_intent_pair;not null"`
	Kind      string         `json:"kind" gorm:"type:varchar(20);default:'PHYSICAL'"`
	Details   datatypes.JSON `json:"details"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"index"`
}
