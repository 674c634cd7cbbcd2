package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backend/internal/apperr"
	"backend/internal/authz"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- In-memory fakes over the repository interfaces ---

type fakeExpenseRepo struct {
	mu       sync.Mutex
	expenses map[uuid.UUID]*model.Expense
	reads    int
}

func newFakeExpenseRepo() *fakeExpenseRepo {
	return &fakeExpenseRepo{expenses: make(map[uuid.UUID]*model.Expense)}
}

func (r *fakeExpenseRepo) Create(_ context.Context, expense *model.Expense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	expense.ID = uuid.New()
	expense.CreatedAt = time.Now()
	expense.UpdatedAt = expense.CreatedAt
	stored := *expense
	r.expenses[expense.ID] = &stored
	return nil
}

func (r *fakeExpenseRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	expense, ok := r.expenses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *expense
	return &copied, nil
}

func (r *fakeExpenseRepo) ListByEmployee(_ context.Context, employeeID uuid.UUID, _ repository.ExpenseFilter, _, _ int) ([]model.Expense, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.Expense
	for _, e := range r.expenses {
		if e.EmployeeID == employeeID {
			result = append(result, *e)
		}
	}
	return result, int64(len(result)), nil
}

func (r *fakeExpenseRepo) ListByManager(_ context.Context, _ uuid.UUID, _ repository.ExpenseFilter, _, _ int) ([]model.Expense, int64, error) {
	return nil, 0, nil
}

func (r *fakeExpenseRepo) ListPendingByManager(_ context.Context, _ uuid.UUID) ([]model.Expense, error) {
	return nil, nil
}

func (r *fakeExpenseRepo) ListPendingByCompany(_ context.Context, companyID uuid.UUID) ([]model.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.Expense
	for _, e := range r.expenses {
		if e.CompanyID == companyID && e.Status == model.StatusPending {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (r *fakeExpenseRepo) UpdateStatusIfPending(_ context.Context, id uuid.UUID, status string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expense, ok := r.expenses[id]
	if !ok || expense.Status != model.StatusPending {
		return 0, nil
	}
	expense.Status = status
	expense.UpdatedAt = time.Now()
	return 1, nil
}

func (r *fakeExpenseRepo) get(id uuid.UUID) model.Expense {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.expenses[id]
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []model.ApprovalHistory
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *model.ApprovalHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByExpense(_ context.Context, expenseID uuid.UUID) ([]model.ApprovalHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []model.ApprovalHistory
	for _, e := range r.entries {
		if e.ExpenseID == expenseID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeHistoryRepo) forExpense(expenseID uuid.UUID) []model.ApprovalHistory {
	entries, _ := r.ListByExpense(context.Background(), expenseID)
	return entries
}

type fakeUserRepo struct {
	users map[uuid.UUID]*model.User
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	user.ID = uuid.New()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) ListByCompany(_ context.Context, _ uuid.UUID, _, _ int) ([]model.User, int64, error) {
	return nil, 0, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, _ string, _, _ int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries, int64(len(r.entries)), nil
}

// fakeTxManager runs the closure directly; the fakes have no rollback, which
// is fine because the service fails before any write on the conflict path.
type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type stubConverter struct {
	rate  decimal.Decimal
	calls int
}

func (c *stubConverter) Rate(_ context.Context, _, _ string) decimal.Decimal {
	c.calls++
	return c.rate
}

type recordingNotifier struct {
	mu     sync.Mutex
	events [][]byte
}

func (n *recordingNotifier) Publish(message []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, message)
}

// --- Test fixture ---

type fixture struct {
	expenseRepo *fakeExpenseRepo
	historyRepo *fakeHistoryRepo
	userRepo    *fakeUserRepo
	auditRepo   *fakeAuditRepo
	converter   *stubConverter
	notifier    *recordingNotifier
	service     ExpenseService

	companyID  uuid.UUID
	employee   authz.Actor
	manager    authz.Actor
	admin      authz.Actor
	otherMgr   authz.Actor
	employeeID uuid.UUID
}

func newFixture(t *testing.T, rate decimal.Decimal) *fixture {
	t.Helper()

	f := &fixture{
		expenseRepo: newFakeExpenseRepo(),
		historyRepo: &fakeHistoryRepo{},
		userRepo:    &fakeUserRepo{users: make(map[uuid.UUID]*model.User)},
		auditRepo:   &fakeAuditRepo{},
		converter:   &stubConverter{rate: rate},
		notifier:    &recordingNotifier{},
		companyID:   uuid.New(),
	}

	managerID := uuid.New()
	otherMgrID := uuid.New()
	employeeID := uuid.New()

	f.userRepo.users[managerID] = &model.User{ID: managerID, CompanyID: f.companyID, Role: "manager"}
	f.userRepo.users[otherMgrID] = &model.User{ID: otherMgrID, CompanyID: f.companyID, Role: "manager"}
	f.userRepo.users[employeeID] = &model.User{
		ID:        employeeID,
		CompanyID: f.companyID,
		Role:      "employee",
		ManagerID: &managerID,
	}

	f.employeeID = employeeID
	f.employee = authz.Actor{ID: employeeID, CompanyID: f.companyID, Role: authz.RoleEmployee, CurrencyCode: "USD"}
	f.manager = authz.Actor{ID: managerID, CompanyID: f.companyID, Role: authz.RoleManager, CurrencyCode: "USD"}
	f.otherMgr = authz.Actor{ID: otherMgrID, CompanyID: f.companyID, Role: authz.RoleManager, CurrencyCode: "USD"}
	f.admin = authz.Actor{ID: uuid.New(), CompanyID: f.companyID, Role: authz.RoleAdmin, CurrencyCode: "USD"}

	f.service = NewExpenseService(
		f.expenseRepo, f.historyRepo, f.userRepo, f.auditRepo,
		fakeTxManager{}, f.converter, f.notifier,
	)
	return f
}

func (f *fixture) submitPending(t *testing.T) ExpenseResponse {
	t.Helper()
	resp, err := f.service.Submit(context.Background(), f.employee, SubmitExpenseRequest{
		Amount:       "100",
		CurrencyCode: "USD",
		CategoryID:   uuid.NewString(),
		ExpenseDate:  "2024-01-10",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return resp
}

// --- Submission ---

func TestSubmit_SameCurrencyKeepsAmountVerbatim(t *testing.T) {
	f := newFixture(t, decimal.NewFromFloat(1.08))

	resp := f.submitPending(t)

	if resp.ConvertedAmount != "100.00" {
		t.Errorf("converted amount = %s, want 100.00", resp.ConvertedAmount)
	}
	if resp.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", resp.Status)
	}
	if f.converter.calls != 0 {
		t.Errorf("converter called %d times for matching currencies, want 0", f.converter.calls)
	}
}

func TestSubmit_ConvertsIntoCompanyCurrency(t *testing.T) {
	f := newFixture(t, decimal.NewFromFloat(1.08))

	resp, err := f.service.Submit(context.Background(), f.employee, SubmitExpenseRequest{
		Amount:       "100",
		CurrencyCode: "EUR",
		CategoryID:   uuid.NewString(),
		ExpenseDate:  "2024-01-10",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	if resp.Amount != "100.00" {
		t.Errorf("amount = %s, want 100.00", resp.Amount)
	}
	if resp.ConvertedAmount != "108.00" {
		t.Errorf("converted amount = %s, want 108.00", resp.ConvertedAmount)
	}
	if f.converter.calls != 1 {
		t.Errorf("converter called %d times, want 1", f.converter.calls)
	}
	if resp.CompanyID != f.companyID.String() {
		t.Errorf("company id = %s, want actor's company %s", resp.CompanyID, f.companyID)
	}
	if resp.EmployeeID != f.employeeID.String() {
		t.Errorf("employee id = %s, want actor's id %s", resp.EmployeeID, f.employeeID)
	}
}

func TestSubmit_FallbackRateKeepsOriginalAmount(t *testing.T) {
	// The converter degrades to rate 1 on provider failure; the submission
	// must proceed with the unconverted amount.
	f := newFixture(t, decimal.NewFromInt(1))

	resp, err := f.service.Submit(context.Background(), f.employee, SubmitExpenseRequest{
		Amount:       "42.50",
		CurrencyCode: "EUR",
		CategoryID:   uuid.NewString(),
		ExpenseDate:  "2024-01-10",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if resp.ConvertedAmount != "42.50" {
		t.Errorf("converted amount = %s, want 42.50", resp.ConvertedAmount)
	}
}

func TestSubmit_MissingFieldsRejected(t *testing.T) {
	valid := SubmitExpenseRequest{
		Amount:       "100",
		CurrencyCode: "USD",
		CategoryID:   uuid.NewString(),
		ExpenseDate:  "2024-01-10",
	}

	tests := []struct {
		name   string
		mutate func(*SubmitExpenseRequest)
	}{
		{"missing amount", func(r *SubmitExpenseRequest) { r.Amount = "" }},
		{"missing currency", func(r *SubmitExpenseRequest) { r.CurrencyCode = "" }},
		{"missing category", func(r *SubmitExpenseRequest) { r.CategoryID = "" }},
		{"missing date", func(r *SubmitExpenseRequest) { r.ExpenseDate = "" }},
		{"malformed amount", func(r *SubmitExpenseRequest) { r.Amount = "abc" }},
		{"zero amount", func(r *SubmitExpenseRequest) { r.Amount = "0" }},
		{"malformed category", func(r *SubmitExpenseRequest) { r.CategoryID = "not-a-uuid" }},
		{"malformed date", func(r *SubmitExpenseRequest) { r.ExpenseDate = "10/01/2024" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, decimal.NewFromInt(1))
			req := valid
			tt.mutate(&req)

			_, err := f.service.Submit(context.Background(), f.employee, req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("Submit() error = %v, want ErrValidation", err)
			}
			if len(f.expenseRepo.expenses) != 0 {
				t.Errorf("expense persisted despite validation failure")
			}
		})
	}
}

func TestSubmit_FutureExpenseDateAccepted(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))

	future := time.Now().AddDate(0, 1, 0).Format("2006-01-02")
	_, err := f.service.Submit(context.Background(), f.employee, SubmitExpenseRequest{
		Amount:       "10",
		CurrencyCode: "USD",
		CategoryID:   uuid.NewString(),
		ExpenseDate:  future,
	})
	if err != nil {
		t.Fatalf("Submit() with future date failed: %v", err)
	}
}

func TestSubmit_WritesAuditEntry(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))

	f.submitPending(t)

	if len(f.auditRepo.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(f.auditRepo.entries))
	}
	if f.auditRepo.entries[0].Action != model.ActionSubmitExpense {
		t.Errorf("audit action = %s, want %s", f.auditRepo.entries[0].Action, model.ActionSubmitExpense)
	}
}

// --- Decision ---

func TestDecide_InvalidActionFailsBeforeDataAccess(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))
	resp := f.submitPending(t)
	f.expenseRepo.reads = 0

	_, err := f.service.Decide(context.Background(), f.manager, resp.ID, DecideExpenseRequest{Action: "maybe"})
	if !errors.Is(err, apperr.ErrInvalidAction) {
		t.Fatalf("Decide() error = %v, want ErrInvalidAction", err)
	}
	if f.expenseRepo.reads != 0 {
		t.Errorf("expense loaded despite invalid action")
	}
	if got := f.expenseRepo.get(mustParse(t, resp.ID)).Status; got != model.StatusPending {
		t.Errorf("status = %s, want pending", got)
	}
}

func TestDecide_UnknownExpense(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))

	_, err := f.service.Decide(context.Background(), f.manager, uuid.NewString(), DecideExpenseRequest{Action: model.StatusApproved})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Decide() error = %v, want ErrNotFound", err)
	}
}

func TestDecide_AuthorizationMatrix(t *testing.T) {
	otherCompanyAdmin := authz.Actor{ID: uuid.New(), CompanyID: uuid.New(), Role: authz.RoleAdmin, CurrencyCode: "USD"}

	tests := []struct {
		name      string
		actor     func(f *fixture) authz.Actor
		wantAllow bool
	}{
		{"direct manager", func(f *fixture) authz.Actor { return f.manager }, true},
		{"admin same company", func(f *fixture) authz.Actor { return f.admin }, true},
		{"manager of someone else", func(f *fixture) authz.Actor { return f.otherMgr }, false},
		{"admin other company", func(f *fixture) authz.Actor { return otherCompanyAdmin }, false},
		{"employee", func(f *fixture) authz.Actor { return f.employee }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, decimal.NewFromInt(1))
			resp := f.submitPending(t)

			_, err := f.service.Decide(context.Background(), tt.actor(f), resp.ID, DecideExpenseRequest{Action: model.StatusApproved})
			if tt.wantAllow {
				if err != nil {
					t.Fatalf("Decide() failed: %v", err)
				}
				return
			}

			if !errors.Is(err, apperr.ErrForbidden) {
				t.Fatalf("Decide() error = %v, want ErrForbidden", err)
			}
			if got := f.expenseRepo.get(mustParse(t, resp.ID)).Status; got != model.StatusPending {
				t.Errorf("status = %s, want pending after denial", got)
			}
			if len(f.historyRepo.forExpense(mustParse(t, resp.ID))) != 0 {
				t.Errorf("history written despite denial")
			}
		})
	}
}

func TestDecide_ApprovalRecordsHistoryAndNotifies(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))
	resp := f.submitPending(t)

	decision, err := f.service.Decide(context.Background(), f.manager, resp.ID, DecideExpenseRequest{
		Action:   model.StatusApproved,
		Comments: "ok",
	})
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}

	if decision.ID != resp.ID || decision.Status != model.StatusApproved {
		t.Errorf("decision = %+v, want {%s approved}", decision, resp.ID)
	}

	id := mustParse(t, resp.ID)
	if got := f.expenseRepo.get(id).Status; got != model.StatusApproved {
		t.Errorf("status = %s, want approved", got)
	}

	entries := f.historyRepo.forExpense(id)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want exactly 1", len(entries))
	}
	entry := entries[0]
	if entry.ApproverID != f.manager.ID || entry.Action != model.StatusApproved || entry.Comments != "ok" {
		t.Errorf("history entry = %+v, want approver %s action approved comments ok", entry, f.manager.ID)
	}

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	if len(f.notifier.events) != 1 {
		t.Errorf("notifier events = %d, want 1", len(f.notifier.events))
	}
}

func TestDecide_SecondDecisionNeverFlipsStatus(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))
	resp := f.submitPending(t)

	if _, err := f.service.Decide(context.Background(), f.manager, resp.ID, DecideExpenseRequest{Action: model.StatusApproved}); err != nil {
		t.Fatalf("first Decide() failed: %v", err)
	}

	_, err := f.service.Decide(context.Background(), f.admin, resp.ID, DecideExpenseRequest{Action: model.StatusRejected})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second Decide() error = %v, want ErrConflict", err)
	}

	id := mustParse(t, resp.ID)
	if got := f.expenseRepo.get(id).Status; got != model.StatusApproved {
		t.Errorf("status = %s, want approved to survive the second decision", got)
	}
	if entries := f.historyRepo.forExpense(id); len(entries) != 1 {
		t.Errorf("history entries = %d, want exactly 1", len(entries))
	}
}

func TestDecide_ConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))
	resp := f.submitPending(t)
	id := mustParse(t, resp.ID)

	actions := []string{model.StatusApproved, model.StatusRejected}
	errs := make([]error, len(actions))

	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action string) {
			defer wg.Done()
			_, errs[i] = f.service.Decide(context.Background(), f.admin, resp.ID, DecideExpenseRequest{Action: action})
		}(i, action)
	}
	wg.Wait()

	var winners []string
	for i, err := range errs {
		switch {
		case err == nil:
			winners = append(winners, actions[i])
		case errors.Is(err, apperr.ErrConflict):
		default:
			t.Fatalf("unexpected error from Decide(%s): %v", actions[i], err)
		}
	}

	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}

	finalStatus := f.expenseRepo.get(id).Status
	if finalStatus != winners[0] {
		t.Errorf("final status = %s, want winner's action %s", finalStatus, winners[0])
	}

	entries := f.historyRepo.forExpense(id)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want exactly 1", len(entries))
	}
	if entries[0].Action != finalStatus {
		t.Errorf("history action = %s, want %s", entries[0].Action, finalStatus)
	}
}

// --- Listing ---

func TestListPendingApprovals_EmployeeDenied(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))

	_, err := f.service.ListPendingApprovals(context.Background(), f.employee)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ListPendingApprovals() error = %v, want ErrForbidden", err)
	}
}

func TestListPendingApprovals_AdminSeesCompanyPending(t *testing.T) {
	f := newFixture(t, decimal.NewFromInt(1))
	resp := f.submitPending(t)

	pending, err := f.service.ListPendingApprovals(context.Background(), f.admin)
	if err != nil {
		t.Fatalf("ListPendingApprovals() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != resp.ID {
		t.Errorf("pending = %+v, want the submitted claim", pending)
	}
}

func mustParse(t *testing.T, id string) uuid.UUID {
	t.Helper()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("invalid uuid %q: %v", id, err)
	}
	return parsed
}
