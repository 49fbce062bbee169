package course

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course represents a learning course
type Course struct {
	gorm.Model
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Author       string           `json:"author"`
	Duration     int64            `json:"duration" gorm:"default:0"`     // duration in hours
	Status       string           `json:"status" gorm:"default:'DRAFT'"` // DRAFT, ACTIVE, INACTIVE
	Price        *decimal.Decimal `json:"price" gorm:"type:numeric(12,2)"` // nil or zero = free
	Currency     string           `json:"currency" gorm:"type:varchar(3);default:'USD'"`
	ThumbnailURL string           `json:"thumbnail_url"`
	IsPublished  bool             `json:"is_published" gorm:"default:false"`
	IsDeleted    bool             `gorm:"default:false"`
}

// IsFree reports whether the course can be enrolled in without a payment.
func (c *Course) IsFree() bool {
	return c.Price == nil || !c.Price.IsPositive()
}

// BaseCurrency is the catalog currency of the course price.
func (c *Course) BaseCurrency() string {
	if c.Currency == "" {
		return "USD"
	}
	return c.Currency
}
