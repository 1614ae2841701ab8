package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/crewbase/crewbase/internal/provisioning"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubProvisioner returns canned errors and records the arguments it was
// called with.
type stubProvisioner struct {
	employeeErr error
	adminErr    error

	gotPrincipalID string
	gotCode        string
	gotCompanyName string
}

func (s *stubProvisioner) ProvisionEmployee(_ context.Context, principalID string, _ *string, code string) error {
	s.gotPrincipalID = principalID
	s.gotCode = code
	return s.employeeErr
}

func (s *stubProvisioner) ProvisionAdmin(_ context.Context, principalID, companyName string, _, _ *string) error {
	s.gotPrincipalID = principalID
	s.gotCompanyName = companyName
	return s.adminErr
}

func newOnboardingRouter(stub *stubProvisioner) *gin.Engine {
	h := NewHandlers(stub)
	r := gin.New()
	r.POST("/api/v1/onboarding/employee", h.EmployeeHandler())
	r.POST("/api/v1/onboarding/admin", h.AdminHandler())
	return r
}

func doJSON(t *testing.T, r *gin.Engine, path string, body any) (*httptest.ResponseRecorder, result) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return w, res
}

func TestEmployeeHandler_Success(t *testing.T) {
	stub := &stubProvisioner{}
	r := newOnboardingRouter(stub)

	w, res := doJSON(t, r, "/api/v1/onboarding/employee", gin.H{
		"principal_id":    "principal-1",
		"invitation_code": "Ab3Xk9",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !res.Success {
		t.Error("expected success=true")
	}
	if res.Reason != "" {
		t.Errorf("expected no reason, got %q", res.Reason)
	}
	if stub.gotPrincipalID != "principal-1" || stub.gotCode != "Ab3Xk9" {
		t.Errorf("service called with (%q, %q)", stub.gotPrincipalID, stub.gotCode)
	}
}

func TestEmployeeHandler_MissingFields(t *testing.T) {
	stub := &stubProvisioner{}
	r := newOnboardingRouter(stub)

	// invitation_code absent: rejected by binding before the service runs.
	w, res := doJSON(t, r, "/api/v1/onboarding/employee", gin.H{
		"principal_id": "principal-1",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if res.Reason != ReasonValidationFailed {
		t.Errorf("expected reason %s, got %q", ReasonValidationFailed, res.Reason)
	}
	if stub.gotPrincipalID != "" {
		t.Error("service should not have been called")
	}
}

func TestEmployeeHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"principal not found", provisioning.ErrPrincipalNotFound, http.StatusNotFound, ReasonPrincipalNotFound},
		{"invalid code", provisioning.ErrInvalidCode, http.StatusUnprocessableEntity, ReasonInvalidCode},
		{"validation", provisioning.ErrValidation, http.StatusBadRequest, ReasonValidationFailed},
		{"metadata sync", provisioning.ErrMetadataSync, http.StatusBadGateway, ReasonMetadataSyncFailed},
		{"transient", errors.New("connection refused"), http.StatusInternalServerError, ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newOnboardingRouter(&stubProvisioner{employeeErr: tt.err})

			w, res := doJSON(t, r, "/api/v1/onboarding/employee", gin.H{
				"principal_id":    "principal-1",
				"invitation_code": "Ab3Xk9",
			})

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if res.Success {
				t.Error("expected success=false")
			}
			if res.Reason != tt.wantReason {
				t.Errorf("expected reason %s, got %q", tt.wantReason, res.Reason)
			}
		})
	}
}

func TestAdminHandler_Success(t *testing.T) {
	stub := &stubProvisioner{}
	r := newOnboardingRouter(stub)

	w, res := doJSON(t, r, "/api/v1/onboarding/admin", gin.H{
		"principal_id": "principal-1",
		"company_name": "Acme Corp",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !res.Success {
		t.Error("expected success=true")
	}
	if stub.gotCompanyName != "Acme Corp" {
		t.Errorf("service called with company %q", stub.gotCompanyName)
	}
}

func TestAdminHandler_MissingCompanyName(t *testing.T) {
	stub := &stubProvisioner{}
	r := newOnboardingRouter(stub)

	w, res := doJSON(t, r, "/api/v1/onboarding/admin", gin.H{
		"principal_id": "principal-1",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if res.Reason != ReasonValidationFailed {
		t.Errorf("expected reason %s, got %q", ReasonValidationFailed, res.Reason)
	}
}

func TestAdminHandler_PrincipalNotFound(t *testing.T) {
	r := newOnboardingRouter(&stubProvisioner{adminErr: provisioning.ErrPrincipalNotFound})

	w, res := doJSON(t, r, "/api/v1/onboarding/admin", gin.H{
		"principal_id": "ghost",
		"company_name": "Acme Corp",
	})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if res.Reason != ReasonPrincipalNotFound {
		t.Errorf("expected reason %s, got %q", ReasonPrincipalNotFound, res.Reason)
	}
}
