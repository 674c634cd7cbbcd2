package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"backend/internal/apperr"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.ErrValidation, http.StatusBadRequest},
		{"invalid action", apperr.ErrInvalidAction, http.StatusBadRequest},
		{"not found", apperr.ErrNotFound, http.StatusNotFound},
		{"forbidden", apperr.ErrForbidden, http.StatusForbidden},
		{"conflict", apperr.ErrConflict, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("decide: %w", apperr.ErrConflict), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFromError(tt.err); got != tt.want {
				t.Errorf("statusFromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
