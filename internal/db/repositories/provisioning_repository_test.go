package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/crewbase/crewbase/internal/db/models"
)

func newProvisioningRepo(t *testing.T) (*ProvisioningRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProvisioningRepository(db), mock
}

func employeeAccount() *models.Account {
	dept := "Engineering"
	return &models.Account{
		PrincipalID:    "prn-1",
		Email:          "jane@acme.test",
		FirstName:      "Jane",
		LastName:       "Doe",
		Role:           models.RoleEmployee,
		Department:     &dept,
		OrganizationID: "org-1",
	}
}

// ---------------------------------------------------------------------------
// CreateEmployeeAccount
// ---------------------------------------------------------------------------

func TestCreateEmployeeAccount_Success(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitation_codes.*SET used = TRUE.*WHERE id = .* AND used = FALSE").
		WithArgs("code-1", "prn-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	account := employeeAccount()
	if err := repo.CreateEmployeeAccount(context.Background(), account, "code-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID == "" {
		t.Error("expected account ID to be assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The compare-and-set claim matched zero rows: a concurrent caller consumed the
// code between lookup and claim. No account insert may happen.
func TestCreateEmployeeAccount_CodeClaimedConcurrently(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitation_codes.*SET used = TRUE").
		WithArgs("code-1", "prn-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateEmployeeAccount(context.Background(), employeeAccount(), "code-1")
	if !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("error = %v, want ErrCodeAlreadyUsed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The principal already has an account (unique violation on principal_id): the
// claim must roll back so the code stays redeemable.
func TestCreateEmployeeAccount_DuplicatePrincipal(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitation_codes.*SET used = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_principal_id_key"})
	mock.ExpectRollback()

	err := repo.CreateEmployeeAccount(context.Background(), employeeAccount(), "code-1")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("error = %v, want ErrAccountExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateEmployeeAccount_InsertFailureRollsBack(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitation_codes.*SET used = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.CreateEmployeeAccount(context.Background(), employeeAccount(), "code-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrCodeAlreadyUsed) || errors.Is(err, ErrAccountExists) {
		t.Fatalf("transient failure must not map to a domain error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// CreateAdminAccount
// ---------------------------------------------------------------------------

func TestCreateAdminAccount_Success(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows(orgCreateCols()).
			AddRow("org-9", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	org := &models.Organization{Name: "Acme Corp"}
	account := &models.Account{
		PrincipalID: "prn-2",
		Email:       "admin@acme.test",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Role:        models.RoleAdmin,
	}

	if err := repo.CreateAdminAccount(context.Background(), org, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.ID != "org-9" {
		t.Errorf("org.ID = %s, want org-9", org.ID)
	}
	if account.OrganizationID != "org-9" {
		t.Errorf("account.OrganizationID = %s, want org-9", account.OrganizationID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// An account insert failure must take the freshly inserted organization down
// with it — no orphan organizations.
func TestCreateAdminAccount_AccountFailureRollsBackOrg(t *testing.T) {
	repo, mock := newProvisioningRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO organizations").
		WillReturnRows(sqlmock.NewRows(orgCreateCols()).
			AddRow("org-9", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_principal_id_key"})
	mock.ExpectRollback()

	org := &models.Organization{Name: "Acme Corp"}
	account := &models.Account{PrincipalID: "prn-2", Role: models.RoleAdmin}

	err := repo.CreateAdminAccount(context.Background(), org, account)
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("error = %v, want ErrAccountExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func orgCreateCols() []string {
	return []string{"id", "created_at", "updated_at"}
}
