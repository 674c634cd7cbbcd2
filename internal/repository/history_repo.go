package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HistoryRepository interface {
	Create(ctx context.Context, entry *model.ApprovalHistory) error
	ListByExpense(ctx context.Context, expenseID uuid.UUID) ([]model.ApprovalHistory, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, entry *model.ApprovalHistory) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *historyRepository) ListByExpense(ctx context.Context, expenseID uuid.UUID) ([]model.ApprovalHistory, error) {
	var entries []model.ApprovalHistory
	err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("expense_id = ?", expenseID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
