package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/apperr"
	"backend/internal/authz"
	"backend/internal/currency"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const expenseDateLayout = "2006-01-02"

// --- DTOs ---

type SubmitExpenseRequest struct {
	Amount       string `json:"amount" binding:"required"` // Decimal string
	CurrencyCode string `json:"currency_code" binding:"required"`
	CategoryID   string `json:"category_id" binding:"required"`
	Description  string `json:"description"`
	ExpenseDate  string `json:"expense_date" binding:"required"` // YYYY-MM-DD
	MerchantName string `json:"merchant_name"`
}

type DecideExpenseRequest struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

type ExpenseResponse struct {
	ID              string `json:"id"`
	CompanyID       string `json:"company_id"`
	EmployeeID      string `json:"employee_id"`
	EmployeeName    string `json:"employee_name,omitempty"`
	CategoryID      string `json:"category_id"`
	Amount          string `json:"amount"`
	CurrencyCode    string `json:"currency_code"`
	ConvertedAmount string `json:"converted_amount"`
	Description     string `json:"description"`
	MerchantName    string `json:"merchant_name"`
	ExpenseDate     string `json:"expense_date"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// DecisionResponse is intentionally thin: callers re-fetch the full record if
// they need it.
type DecisionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type HistoryResponse struct {
	ID           string `json:"id"`
	ExpenseID    string `json:"expense_id"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name,omitempty"`
	Action       string `json:"action"`
	Comments     string `json:"comments"`
	CreatedAt    string `json:"created_at"`
}

// Notifier pushes decision events to connected dashboard clients.
type Notifier interface {
	Publish(message []byte)
}

// --- Interface ---

type ExpenseService interface {
	Submit(ctx context.Context, actor authz.Actor, req SubmitExpenseRequest) (ExpenseResponse, error)
	Decide(ctx context.Context, actor authz.Actor, expenseID string, req DecideExpenseRequest) (DecisionResponse, error)
	ListMy(ctx context.Context, actor authz.Actor, filter repository.ExpenseFilter, page, limit int) ([]ExpenseResponse, int64, error)
	ListTeam(ctx context.Context, actor authz.Actor, filter repository.ExpenseFilter, page, limit int) ([]ExpenseResponse, int64, error)
	ListPendingApprovals(ctx context.Context, actor authz.Actor) ([]ExpenseResponse, error)
	History(ctx context.Context, expenseID string) ([]HistoryResponse, error)
}

type expenseService struct {
	expenseRepo repository.ExpenseRepository
	historyRepo repository.HistoryRepository
	userRepo    repository.UserRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	converter   currency.Converter
	notifier    Notifier // optional
}

func NewExpenseService(
	expenseRepo repository.ExpenseRepository,
	historyRepo repository.HistoryRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	converter currency.Converter,
	notifier Notifier,
) ExpenseService {
	return &expenseService{
		expenseRepo: expenseRepo,
		historyRepo: historyRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		converter:   converter,
		notifier:    notifier,
	}
}

// --- Implementation ---

// Submit validates the claim, normalizes the amount into the company currency
// and persists it as pending. The rate lookup never fails the submission: the
// converter degrades to rate 1 on any provider problem.
func (s *expenseService) Submit(ctx context.Context, actor authz.Actor, req SubmitExpenseRequest) (ExpenseResponse, error) {
	if req.Amount == "" || req.CurrencyCode == "" || req.CategoryID == "" || req.ExpenseDate == "" {
		return ExpenseResponse{}, fmt.Errorf("%w: amount, currency_code, category_id and expense_date are required", apperr.ErrValidation)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return ExpenseResponse{}, fmt.Errorf("%w: invalid amount %q", apperr.ErrValidation, req.Amount)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ExpenseResponse{}, fmt.Errorf("%w: amount must be greater than 0", apperr.ErrValidation)
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return ExpenseResponse{}, fmt.Errorf("%w: invalid category_id", apperr.ErrValidation)
	}

	// Future dates are accepted here on purpose. The original system only
	// hints at it in the UI, and backfilled or pre-booked claims are valid.
	expenseDate, err := time.Parse(expenseDateLayout, req.ExpenseDate)
	if err != nil {
		return ExpenseResponse{}, fmt.Errorf("%w: invalid expense_date, expected YYYY-MM-DD", apperr.ErrValidation)
	}

	convertedAmount := amount
	if req.CurrencyCode != actor.CurrencyCode {
		rate := s.converter.Rate(ctx, req.CurrencyCode, actor.CurrencyCode)
		convertedAmount = amount.Mul(rate).Round(2)
	}

	expense := model.Expense{
		CompanyID:       actor.CompanyID,
		EmployeeID:      actor.ID,
		CategoryID:      categoryID,
		Amount:          amount,
		CurrencyCode:    req.CurrencyCode,
		ConvertedAmount: convertedAmount,
		Description:     req.Description,
		MerchantName:    req.MerchantName,
		ExpenseDate:     expenseDate,
		Status:          model.StatusPending,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.expenseRepo.Create(txCtx, &expense); createErr != nil {
			return fmt.Errorf("failed to create expense: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"amount":           req.Amount,
			"currency_code":    req.CurrencyCode,
			"converted_amount": convertedAmount.StringFixed(2),
			"category_id":      req.CategoryID,
			"expense_date":     req.ExpenseDate,
		})
		audit := &model.AuditLog{
			UserID:   &actor.ID,
			Action:   model.ActionSubmitExpense,
			EntityID: expense.ID.String(),
			Details:  string(details),
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write submit audit log: %w", auditErr)
		}

		return nil
	})

	if err != nil {
		return ExpenseResponse{}, err
	}

	return toExpenseResponse(expense), nil
}

// Decide transitions a pending claim to approved or rejected. The status flip,
// the approval-history append and the audit entry commit as one transaction;
// a claim that already left pending is a conflict and nothing is written.
func (s *expenseService) Decide(ctx context.Context, actor authz.Actor, expenseID string, req DecideExpenseRequest) (DecisionResponse, error) {
	if req.Action != model.StatusApproved && req.Action != model.StatusRejected {
		return DecisionResponse{}, fmt.Errorf("%w: %q, must be approved or rejected", apperr.ErrInvalidAction, req.Action)
	}

	id, err := uuid.Parse(expenseID)
	if err != nil {
		return DecisionResponse{}, fmt.Errorf("%w: invalid expense id", apperr.ErrValidation)
	}

	expense, err := s.expenseRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DecisionResponse{}, apperr.ErrNotFound
		}
		return DecisionResponse{}, fmt.Errorf("failed to load expense: %w", err)
	}

	ownership, err := s.resolveOwnership(ctx, expense)
	if err != nil {
		return DecisionResponse{}, err
	}
	if !authz.CanDecide(actor, ownership) {
		return DecisionResponse{}, apperr.ErrForbidden
	}

	if expense.Status != model.StatusPending {
		return DecisionResponse{}, fmt.Errorf("%w: status is already %s", apperr.ErrConflict, expense.Status)
	}

	auditAction := model.ActionApproveExpense
	if req.Action == model.StatusRejected {
		auditAction = model.ActionRejectExpense
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rows, updateErr := s.expenseRepo.UpdateStatusIfPending(txCtx, id, req.Action)
		if updateErr != nil {
			return fmt.Errorf("failed to update expense status: %w", updateErr)
		}
		// Another decision won the race between our read and this update.
		// Rolling back here keeps the history trail consistent with the
		// winner's terminal status.
		if rows == 0 {
			return fmt.Errorf("%w: decided concurrently", apperr.ErrConflict)
		}

		entry := &model.ApprovalHistory{
			ExpenseID:  id,
			ApproverID: actor.ID,
			Action:     req.Action,
			Comments:   req.Comments,
		}
		if histErr := s.historyRepo.Create(txCtx, entry); histErr != nil {
			return fmt.Errorf("failed to record approval history: %w", histErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"action":      req.Action,
			"comments":    req.Comments,
			"employee_id": expense.EmployeeID.String(),
		})
		audit := &model.AuditLog{
			UserID:   &actor.ID,
			Action:   auditAction,
			EntityID: id.String(),
			Details:  string(details),
		}
		if auditErr := s.auditRepo.Log(txCtx, audit); auditErr != nil {
			return fmt.Errorf("failed to write decision audit log: %w", auditErr)
		}

		return nil
	})

	if err != nil {
		return DecisionResponse{}, err
	}

	s.notifyDecision(id, req.Action, expense.EmployeeID)

	return DecisionResponse{ID: id.String(), Status: req.Action}, nil
}

func (s *expenseService) ListMy(ctx context.Context, actor authz.Actor, filter repository.ExpenseFilter, page, limit int) ([]ExpenseResponse, int64, error) {
	expenses, total, err := s.expenseRepo.ListByEmployee(ctx, actor.ID, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch expenses: %w", err)
	}
	return toExpenseResponses(expenses), total, nil
}

func (s *expenseService) ListTeam(ctx context.Context, actor authz.Actor, filter repository.ExpenseFilter, page, limit int) ([]ExpenseResponse, int64, error) {
	expenses, total, err := s.expenseRepo.ListByManager(ctx, actor.ID, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch team expenses: %w", err)
	}
	return toExpenseResponses(expenses), total, nil
}

// ListPendingApprovals returns the pending claims the actor could decide:
// direct reports' claims for a manager, company-wide for an admin.
func (s *expenseService) ListPendingApprovals(ctx context.Context, actor authz.Actor) ([]ExpenseResponse, error) {
	var (
		expenses []model.Expense
		err      error
	)

	switch actor.Role {
	case authz.RoleManager:
		expenses, err = s.expenseRepo.ListPendingByManager(ctx, actor.ID)
	case authz.RoleAdmin:
		expenses, err = s.expenseRepo.ListPendingByCompany(ctx, actor.CompanyID)
	default:
		return nil, apperr.ErrForbidden
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}
	return toExpenseResponses(expenses), nil
}

func (s *expenseService) History(ctx context.Context, expenseID string) ([]HistoryResponse, error) {
	id, err := uuid.Parse(expenseID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expense id", apperr.ErrValidation)
	}

	entries, err := s.historyRepo.ListByExpense(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approval history: %w", err)
	}

	result := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp := HistoryResponse{
			ID:         e.ID.String(),
			ExpenseID:  e.ExpenseID.String(),
			ApproverID: e.ApproverID.String(),
			Action:     e.Action,
			Comments:   e.Comments,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
		if e.Approver != nil {
			resp.ApproverName = e.Approver.FirstName + " " + e.Approver.LastName
		}
		result = append(result, resp)
	}
	return result, nil
}

// --- Helpers ---

// resolveOwnership loads the relationship data the pure policy needs.
func (s *expenseService) resolveOwnership(ctx context.Context, expense *model.Expense) (authz.ClaimOwnership, error) {
	ownership := authz.ClaimOwnership{
		CompanyID:  expense.CompanyID,
		EmployeeID: expense.EmployeeID,
	}

	if expense.Employee != nil {
		ownership.OwnerManagerID = expense.Employee.ManagerID
		return ownership, nil
	}

	owner, err := s.userRepo.GetByID(ctx, expense.EmployeeID)
	if err != nil {
		return authz.ClaimOwnership{}, fmt.Errorf("failed to load expense owner: %w", err)
	}
	ownership.OwnerManagerID = owner.ManagerID
	return ownership, nil
}

func (s *expenseService) notifyDecision(expenseID uuid.UUID, action string, employeeID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	event, _ := json.Marshal(map[string]string{
		"type":        "expense_decided",
		"expense_id":  expenseID.String(),
		"status":      action,
		"employee_id": employeeID.String(),
	})
	s.notifier.Publish(event)
}

func toExpenseResponse(e model.Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ID:              e.ID.String(),
		CompanyID:       e.CompanyID.String(),
		EmployeeID:      e.EmployeeID.String(),
		CategoryID:      e.CategoryID.String(),
		Amount:          e.Amount.StringFixed(2),
		CurrencyCode:    e.CurrencyCode,
		ConvertedAmount: e.ConvertedAmount.StringFixed(2),
		Description:     e.Description,
		MerchantName:    e.MerchantName,
		ExpenseDate:     e.ExpenseDate.Format(expenseDateLayout),
		Status:          e.Status,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
	}
	if e.Employee != nil {
		resp.EmployeeName = e.Employee.FirstName + " " + e.Employee.LastName
	}
	return resp
}

func toExpenseResponses(expenses []model.Expense) []ExpenseResponse {
	result := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		result = append(result, toExpenseResponse(e))
	}
	return result
}
