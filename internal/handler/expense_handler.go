package handler

import (
	"errors"
	"net/http"
	"time"

	"backend/internal/apperr"
	"backend/internal/authz"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ExpenseHandler struct {
	expenseService    service.ExpenseService
	categoryService   service.CategoryService
	statisticsService service.StatisticsService
}

func NewExpenseHandler(
	expenseService service.ExpenseService,
	categoryService service.CategoryService,
	statisticsService service.StatisticsService,
) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService:    expenseService,
		categoryService:   categoryService,
		statisticsService: statisticsService,
	}
}

func (h *ExpenseHandler) RegisterRoutes(router *gin.RouterGroup) {
	expenses := router.Group("/api/expenses")
	{
		anyRole := middleware.RequireRole(authz.RoleEmployee, authz.RoleManager, authz.RoleAdmin)
		approvers := middleware.RequireRole(authz.RoleManager, authz.RoleAdmin)

		expenses.POST("", anyRole, h.SubmitExpense)
		expenses.GET("/my-expenses", anyRole, h.GetMyExpenses)
		expenses.GET("/categories", anyRole, h.GetCategories)
		expenses.POST("/categories", middleware.RequireRole(authz.RoleAdmin), h.CreateCategory)
		expenses.GET("/stats", anyRole, h.GetStats)

		expenses.GET("/team-expenses", approvers, h.GetTeamExpenses)
		expenses.GET("/pending-approvals", approvers, h.GetPendingApprovals)
		expenses.PATCH("/:id/status", approvers, h.UpdateExpenseStatus)
		expenses.GET("/:id/history", approvers, h.GetApprovalHistory)
	}
}

// statusFromError maps service errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// @Summary      Submit expense claim
// @Description  Submit a new expense claim; the amount is normalized into the company currency
// @Tags         Expenses
// @Accept       json
// @Produce      json
// @Param        request body service.SubmitExpenseRequest true "Expense claim"
// @Success      201 {object} response.Response
// @Failure      400 {object} response.Response "Missing or malformed fields"
// @Security     BearerAuth
// @Router       /api/expenses [post]
func (h *ExpenseHandler) SubmitExpense(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	var req service.SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	expense, err := h.expenseService.Submit(c.Request.Context(), actor, req)
	if err != nil {
		status := statusFromError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, expense))
}

// @Summary      Approve or reject an expense claim
// @Description  Transition a pending claim to approved or rejected; records an approval-history entry atomically
// @Tags         Expenses
// @Accept       json
// @Produce      json
// @Param        id      path string true "Expense ID"
// @Param        request body service.DecideExpenseRequest true "Decision"
// @Success      200 {object} response.Response
// @Failure      403 {object} response.Response "Not authorized for this claim"
// @Failure      409 {object} response.Response "Claim already decided"
// @Security     BearerAuth
// @Router       /api/expenses/{id}/status [patch]
func (h *ExpenseHandler) UpdateExpenseStatus(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	var req service.DecideExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	decision, err := h.expenseService.Decide(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		status := statusFromError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, decision))
}

// GetMyExpenses returns the actor's own claims, newest expense first
func (h *ExpenseHandler) GetMyExpenses(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	filter, err := parseExpenseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	params := pagination.Parse(c)
	expenses, total, err := h.expenseService.ListMy(c.Request.Context(), actor, filter, params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   expenses,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetTeamExpenses returns claims of the manager's direct reports
func (h *ExpenseHandler) GetTeamExpenses(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	filter, err := parseExpenseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	params := pagination.Parse(c)
	expenses, total, err := h.expenseService.ListTeam(c.Request.Context(), actor, filter, params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   expenses,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetPendingApprovals returns pending claims visible to the approver's role
func (h *ExpenseHandler) GetPendingApprovals(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	expenses, err := h.expenseService.ListPendingApprovals(c.Request.Context(), actor)
	if err != nil {
		status := statusFromError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, expenses))
}

// GetApprovalHistory returns the decision trail of one claim
func (h *ExpenseHandler) GetApprovalHistory(c *gin.Context) {
	entries, err := h.expenseService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusFromError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}

// GetCategories returns active expense categories of the actor's company
func (h *ExpenseHandler) GetCategories(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	categories, err := h.categoryService.ListCategories(c.Request.Context(), actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, categories))
}

// CreateCategory adds a new expense category (admin only)
func (h *ExpenseHandler) CreateCategory(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	category, err := h.categoryService.CreateCategory(c.Request.Context(), actor, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, category))
}

// @Summary      Get expense dashboard statistics
// @Description  Role-scoped counters: own claims for employees, direct reports for managers, company-wide for admins
// @Tags         Expenses
// @Produce      json
// @Success      200 {object} response.Response
// @Security     BearerAuth
// @Router       /api/expenses/stats [get]
func (h *ExpenseHandler) GetStats(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing actor context"))
		return
	}

	stats, err := h.statisticsService.GetStats(c.Request.Context(), actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

func parseExpenseFilter(c *gin.Context) (repository.ExpenseFilter, error) {
	filter := repository.ExpenseFilter{Status: c.Query("status")}

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return repository.ExpenseFilter{}, errors.New("invalid start_date, expected YYYY-MM-DD")
		}
		filter.StartDate = &parsed
	}

	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return repository.ExpenseFilter{}, errors.New("invalid end_date, expected YYYY-MM-DD")
		}
		filter.EndDate = &parsed
	}

	return filter, nil
}
