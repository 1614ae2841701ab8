// provisioning_repository.go implements ProvisioningRepository, which owns the two
// multi-statement transactions at the core of account provisioning. Keeping both
// writes of each path inside a single transaction is the consistency guarantee the
// whole workflow rests on: a consumed code without an account row (or the reverse)
// would be unrecoverable.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewbase/crewbase/internal/db/models"
)

var (
	// ErrCodeAlreadyUsed is returned when the conditional claim on an invitation
	// code affects zero rows — a concurrent caller consumed the code first.
	ErrCodeAlreadyUsed = errors.New("invitation code already used")

	// ErrAccountExists is returned when the account insert trips the
	// accounts.principal_id unique constraint — the principal was provisioned by
	// a concurrent or earlier call.
	ErrAccountExists = errors.New("account already exists for principal")
)

// ProvisioningRepository executes the transactional writes for both provisioning
// paths.
type ProvisioningRepository struct {
	db *sql.DB
}

// NewProvisioningRepository creates a new ProvisioningRepository
func NewProvisioningRepository(db *sql.DB) *ProvisioningRepository {
	return &ProvisioningRepository{db: db}
}

// CreateEmployeeAccount atomically claims the invitation code and inserts the
// employee account. The claim is a compare-and-set: the UPDATE only matches while
// used is still FALSE, so of N concurrent redemptions of the same code exactly
// one observes RowsAffected == 1 and the rest roll back with ErrCodeAlreadyUsed
// before any insert is attempted.
func (r *ProvisioningRepository) CreateEmployeeAccount(ctx context.Context, account *models.Account, codeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claim := `
		UPDATE invitation_codes
		SET used = TRUE, used_by = $2, used_at = NOW()
		WHERE id = $1 AND used = FALSE
	`

	res, err := tx.ExecContext(ctx, claim, codeID, account.PrincipalID)
	if err != nil {
		return fmt.Errorf("failed to claim invitation code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		return ErrCodeAlreadyUsed
	}

	if err := insertAccount(ctx, tx, account); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateAdminAccount atomically creates the organization and its admin account.
// An orphan organization with no admin, or an admin with no backing organization,
// is never observable.
func (r *ProvisioningRepository) CreateAdminAccount(ctx context.Context, org *models.Organization, account *models.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createOrg := `
		INSERT INTO organizations (name, website, logo_url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, createOrg, org.Name, org.Website, org.LogoURL).Scan(
		&org.ID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	account.OrganizationID = org.ID
	if err := insertAccount(ctx, tx, account); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// insertAccount inserts the account row inside the supplied transaction, mapping
// the principal_id unique violation to ErrAccountExists.
func insertAccount(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	account.ID = uuid.New().String()
	account.CreatedAt = time.Now()

	query := `
		INSERT INTO accounts (id, principal_id, email, first_name, last_name, role, department, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.ExecContext(ctx, query,
		account.ID,
		account.PrincipalID,
		account.Email,
		account.FirstName,
		account.LastName,
		account.Role,
		account.Department,
		account.OrganizationID,
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}
