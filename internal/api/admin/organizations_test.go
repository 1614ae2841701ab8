package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func newOrganizationsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewOrganizationHandlers(db)
	r := gin.New()
	r.GET("/api/v1/admin/organizations", h.ListOrganizationsHandler())
	r.GET("/api/v1/admin/organizations/:id", h.GetOrganizationHandler())
	return mock, r
}

func TestListOrganizationsHandler_DefaultPagination(t *testing.T) {
	mock, r := newOrganizationsRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(orgCols).
			AddRow("org-1", "Acme Corp", nil, nil, time.Now(), time.Now()).
			AddRow("org-2", "Globex", nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/admin/organizations", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Organizations []struct {
			Name string `json:"name"`
		} `json:"organizations"`
		Pagination struct {
			Page    int `json:"page"`
			PerPage int `json:"per_page"`
			Total   int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(body.Organizations) != 2 {
		t.Errorf("expected 2 organizations, got %d", len(body.Organizations))
	}
	if body.Pagination.Page != 1 || body.Pagination.PerPage != 20 || body.Pagination.Total != 2 {
		t.Errorf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestListOrganizationsHandler_ClampsPerPage(t *testing.T) {
	mock, r := newOrganizationsRouter(t)

	// per_page above 100 falls back to the default of 20.
	mock.ExpectQuery("SELECT.*FROM organizations.*ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(orgCols))
	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/admin/organizations?per_page=500", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrganizationHandler_Found(t *testing.T) {
	mock, r := newOrganizationsRouter(t)

	expectOrgLookup(mock, "org-1", true)
	mock.ExpectQuery("SELECT COUNT.*FROM accounts WHERE organization_id").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/admin/organizations/org-1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Organization struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"organization"`
		AccountCount int `json:"account_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Organization.ID != "org-1" || body.AccountCount != 12 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestGetOrganizationHandler_NotFound(t *testing.T) {
	mock, r := newOrganizationsRouter(t)

	expectOrgLookup(mock, "ghost", false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/admin/organizations/ghost", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
