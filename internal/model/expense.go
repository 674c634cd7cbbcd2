package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseStatus enum constants. pending is the initial state; approved and
// rejected are terminal — once a claim leaves pending it never transitions
// again.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Expense represents a single expense claim submitted by an employee.
// CompanyID, EmployeeID and CategoryID are set at creation and never change.
// ConvertedAmount is computed once at submission time in the company's
// reporting currency and is not recomputed on later rate changes.
type Expense struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;index" json:"employee_id"`
	Employee   *User     `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;index" json:"category_id"`

	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	CurrencyCode    string          `gorm:"type:varchar(10);not null" json:"currency_code"`
	ConvertedAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"converted_amount"`

	Description  string    `gorm:"type:text" json:"description"`
	MerchantName string    `gorm:"type:varchar(255)" json:"merchant_name"`
	ExpenseDate  time.Time `gorm:"type:date;not null" json:"expense_date"`

	Status    string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApprovalHistory is the append-only audit trail of decisions. A row exists
// exactly when the claim's status is non-pending, and its Action matches the
// claim's final status.
type ApprovalHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExpenseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"expense_id"`
	ApproverID uuid.UUID `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver   *User     `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Action     string    `gorm:"type:varchar(20);not null" json:"action"` // approved or rejected
	Comments   string    `gorm:"type:text" json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ApprovalHistory) TableName() string {
	return "approval_history"
}
