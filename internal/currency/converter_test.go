package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRate_ReturnsTargetRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/EUR" {
			t.Errorf("expected request path /EUR, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":1.08,"GBP":0.85}}`))
	}))
	defer server.Close()

	converter := NewHTTPConverterWithBase(server.Client(), server.URL)

	rate := converter.Rate(context.Background(), "EUR", "USD")
	if !rate.Equal(decimal.NewFromFloat(1.08)) {
		t.Errorf("Rate() = %s, want 1.08", rate)
	}
}

func TestRate_FallsBackToOne(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "target currency missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"base":"EUR","rates":{"GBP":0.85}}`))
			},
		},
		{
			name: "non-positive rate",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":0}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			converter := NewHTTPConverterWithBase(server.Client(), server.URL)
			rate := converter.Rate(context.Background(), "EUR", "USD")
			if !rate.Equal(decimal.NewFromInt(1)) {
				t.Errorf("Rate() = %s, want fallback 1", rate)
			}
		})
	}
}

func TestRate_FallsBackWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	converter := NewHTTPConverterWithBase(nil, server.URL)
	rate := converter.Rate(context.Background(), "EUR", "USD")
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Rate() = %s, want fallback 1", rate)
	}
}
