package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExpenseFilter narrows list queries. Zero values mean "no constraint".
type ExpenseFilter struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
}

type ExpenseRepository interface {
	Create(ctx context.Context, expense *model.Expense) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Expense, error)
	ListByEmployee(ctx context.Context, employeeID uuid.UUID, filter ExpenseFilter, page, limit int) ([]model.Expense, int64, error)
	ListByManager(ctx context.Context, managerID uuid.UUID, filter ExpenseFilter, page, limit int) ([]model.Expense, int64, error)
	ListPendingByManager(ctx context.Context, managerID uuid.UUID) ([]model.Expense, error)
	ListPendingByCompany(ctx context.Context, companyID uuid.UUID) ([]model.Expense, error)
	// UpdateStatusIfPending flips the status only when the row is still
	// pending and returns the number of rows matched. Zero rows means the
	// claim already reached a terminal state — the caller must treat that as
	// a conflict, never overwrite.
	UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string) (int64, error)
}

type expenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) ExpenseRepository {
	return &expenseRepository{db: db}
}

func (r *expenseRepository) Create(ctx context.Context, expense *model.Expense) error {
	return GetDB(ctx, r.db).Create(expense).Error
}

func (r *expenseRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Expense, error) {
	var expense model.Expense
	if err := GetDB(ctx, r.db).Preload("Employee").First(&expense, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &expense, nil
}

func applyFilter(query *gorm.DB, filter ExpenseFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("expenses.status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		query = query.Where("expenses.expense_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("expenses.expense_date <= ?", *filter.EndDate)
	}
	return query
}

func (r *expenseRepository) ListByEmployee(ctx context.Context, employeeID uuid.UUID, filter ExpenseFilter, page, limit int) ([]model.Expense, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	countQuery := applyFilter(db.Model(&model.Expense{}).Where("employee_id = ?", employeeID), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var expenses []model.Expense
	offset := (page - 1) * limit
	fetchQuery := applyFilter(db.Where("employee_id = ?", employeeID), filter)
	if err := fetchQuery.
		Order("expense_date DESC, created_at DESC").
		Offset(offset).Limit(limit).
		Find(&expenses).Error; err != nil {
		return nil, 0, err
	}

	return expenses, total, nil
}

func (r *expenseRepository) ListByManager(ctx context.Context, managerID uuid.UUID, filter ExpenseFilter, page, limit int) ([]model.Expense, int64, error) {
	db := GetDB(ctx, r.db)

	base := db.Model(&model.Expense{}).
		Joins("JOIN users ON users.id = expenses.employee_id").
		Where("users.manager_id = ?", managerID)

	var total int64
	if err := applyFilter(base.Session(&gorm.Session{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var expenses []model.Expense
	offset := (page - 1) * limit
	fetchQuery := applyFilter(db.
		Joins("JOIN users ON users.id = expenses.employee_id").
		Where("users.manager_id = ?", managerID), filter)
	if err := fetchQuery.
		Preload("Employee").
		Order("expense_date DESC, created_at DESC").
		Offset(offset).Limit(limit).
		Find(&expenses).Error; err != nil {
		return nil, 0, err
	}

	return expenses, total, nil
}

func (r *expenseRepository) ListPendingByManager(ctx context.Context, managerID uuid.UUID) ([]model.Expense, error) {
	var expenses []model.Expense
	err := GetDB(ctx, r.db).
		Joins("JOIN users ON users.id = expenses.employee_id").
		Where("users.manager_id = ? AND expenses.status = ?", managerID, model.StatusPending).
		Preload("Employee").
		Order("expense_date DESC").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *expenseRepository) ListPendingByCompany(ctx context.Context, companyID uuid.UUID) ([]model.Expense, error) {
	var expenses []model.Expense
	err := GetDB(ctx, r.db).
		Where("company_id = ? AND status = ?", companyID, model.StatusPending).
		Preload("Employee").
		Order("expense_date DESC").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *expenseRepository) UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	result := GetDB(ctx, r.db).Model(&model.Expense{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
