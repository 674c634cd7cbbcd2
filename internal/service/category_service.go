package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/authz"
	"backend/internal/model"
	"backend/internal/repository"
)

// --- DTOs ---

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

type CategoryResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// --- Interface ---

type CategoryService interface {
	ListCategories(ctx context.Context, actor authz.Actor) ([]CategoryResponse, error)
	CreateCategory(ctx context.Context, actor authz.Actor, req CreateCategoryRequest) (CategoryResponse, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
	auditRepo    repository.AuditRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository, auditRepo repository.AuditRepository) CategoryService {
	return &categoryService{categoryRepo: categoryRepo, auditRepo: auditRepo}
}

// --- Implementation ---

// ListCategories returns the active categories of the actor's company.
func (s *categoryService) ListCategories(ctx context.Context, actor authz.Actor) ([]CategoryResponse, error) {
	categories, err := s.categoryRepo.ListActiveByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	result := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		result = append(result, toCategoryResponse(c))
	}
	return result, nil
}

func (s *categoryService) CreateCategory(ctx context.Context, actor authz.Actor, req CreateCategoryRequest) (CategoryResponse, error) {
	category := model.ExpenseCategory{
		CompanyID: actor.CompanyID,
		Name:      req.Name,
		IsActive:  true,
	}

	if err := s.categoryRepo.Create(ctx, &category); err != nil {
		return CategoryResponse{}, fmt.Errorf("failed to create category: %w", err)
	}

	details, _ := json.Marshal(map[string]string{"name": req.Name})
	audit := &model.AuditLog{
		UserID:   &actor.ID,
		Action:   model.ActionCreateCategory,
		EntityID: category.ID.String(),
		Details:  string(details),
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return CategoryResponse{}, fmt.Errorf("failed to write category audit log: %w", err)
	}

	return toCategoryResponse(category), nil
}

func toCategoryResponse(c model.ExpenseCategory) CategoryResponse {
	return CategoryResponse{
		ID:        c.ID.String(),
		CompanyID: c.CompanyID.String(),
		Name:      c.Name,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}
