package course

import "gorm.io/gorm"

// CourseContent is a unit of course material. Only published, non-deleted
// rows count towards progress.
type CourseContent struct {
	gorm.Model
	CourseID    uint   `json:"course_id" gorm:"index;not null"`
	ModuleID    uint   `json:"module_id" gorm:"index;not null"`
	Title       string `json:"title"`
	ContentType string `json:"content_type" gorm:"default:'TEXT'"` // TEXT, MCQ, VIDEO, IMAGE
	OrderIndex  int    `json:"order_index" gorm:"default:0"`
	IsPublished bool   `json:"is_published" gorm:"default:false"`
	IsDeleted   bool   `gorm:"default:false"`
}

// ContentCompletion tracks user's completion of course content
type ContentCompletion struct {
	gorm.Model
	UserID          uint   `json:"user_id" gorm:"uniqueIndex:idx_completion_user_content;not null"`
	CourseID        uint   `json:"course_id" gorm:"index;not null"`
	CourseContentID uint   `json:"course_content_id" gorm:"uniqueIndex:idx_completion_user_content;not null"`
	Status          string `json:"status" gorm:"default:'COMPLETED'"`
}
