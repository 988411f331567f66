package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChecker_HandleHealth(t *testing.T) {
	c := NewChecker(Check{Name: "database", Func: func() error { return errors.New("down") }})

	rec := httptest.NewRecorder()
	c.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Liveness must stay 200 when dependencies fail, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if status.Checks["database"] != "unhealthy: down" {
		t.Errorf("Expected verbose check output, got %v", status.Checks)
	}
}

func TestChecker_HandleReadiness(t *testing.T) {
	var dbErr error
	c := NewChecker(Check{Name: "database", Func: func() error { return dbErr }})

	tests := []struct {
		name   string
		ready  bool
		dbErr  error
		status int
	}{
		{"starting", false, nil, http.StatusServiceUnavailable},
		{"ready", true, nil, http.StatusOK},
		{"dependency down", true, errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetReady(tt.ready)
			dbErr = tt.dbErr

			rec := httptest.NewRecorder()
			c.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
