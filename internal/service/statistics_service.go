package service

import (
	"context"
	"fmt"

	"backend/internal/authz"
	"backend/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatsResponse carries the dashboard counters for one actor's scope.
type StatsResponse struct {
	TotalExpenses       int64  `json:"total_expenses"`
	PendingCount        int64  `json:"pending_count"`
	ApprovedCount       int64  `json:"approved_count"`
	RejectedCount       int64  `json:"rejected_count"`
	TotalApprovedAmount string `json:"total_approved_amount"`
}

type StatisticsService interface {
	GetStats(ctx context.Context, actor authz.Actor) (StatsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

type statsRow struct {
	TotalExpenses       int64
	PendingCount        int64
	ApprovedCount       int64
	RejectedCount       int64
	TotalApprovedAmount decimal.Decimal
}

const statsSelect = `
	COUNT(*) AS total_expenses,
	COUNT(*) FILTER (WHERE expenses.status = 'pending') AS pending_count,
	COUNT(*) FILTER (WHERE expenses.status = 'approved') AS approved_count,
	COUNT(*) FILTER (WHERE expenses.status = 'rejected') AS rejected_count,
	COALESCE(SUM(expenses.converted_amount) FILTER (WHERE expenses.status = 'approved'), 0) AS total_approved_amount`

// GetStats aggregates claim counters scoped by role: employees over their own
// claims, managers over their direct reports, admins over the whole company.
func (s *statisticsService) GetStats(ctx context.Context, actor authz.Actor) (StatsResponse, error) {
	var row statsRow

	query := s.db.WithContext(ctx).Model(&model.Expense{}).Select(statsSelect)

	switch actor.Role {
	case authz.RoleEmployee:
		query = query.Where("expenses.employee_id = ?", actor.ID)
	case authz.RoleManager:
		query = query.
			Joins("JOIN users ON users.id = expenses.employee_id").
			Where("users.manager_id = ?", actor.ID)
	case authz.RoleAdmin:
		query = query.Where("expenses.company_id = ?", actor.CompanyID)
	default:
		return StatsResponse{}, fmt.Errorf("unknown role %q", actor.Role)
	}

	if err := query.Scan(&row).Error; err != nil {
		return StatsResponse{}, fmt.Errorf("failed to aggregate expense stats: %w", err)
	}

	return StatsResponse{
		TotalExpenses:       row.TotalExpenses,
		PendingCount:        row.PendingCount,
		ApprovedCount:       row.ApprovedCount,
		RejectedCount:       row.RejectedCount,
		TotalApprovedAmount: row.TotalApprovedAmount.StringFixed(2),
	}, nil
}
