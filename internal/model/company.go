package model

import (
	"time"

	"github.com/google/uuid"
)

// Company owns users, categories and expenses. CurrencyCode is the reporting
// currency every submitted amount is normalized into.
type Company struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	CurrencyCode string    `gorm:"type:varchar(10);not null;default:'USD'" json:"currency_code"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
