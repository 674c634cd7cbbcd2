package model

import (
	"time"

	"github.com/google/uuid"
)

// ExpenseCategory is company-scoped reference data for classifying claims.
type ExpenseCategory struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (ExpenseCategory) TableName() string {
	return "expense_categories"
}
