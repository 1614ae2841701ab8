// account_repository.go implements AccountRepository, providing read access to
// provisioned accounts and the metadata-sync bookkeeping used by the reconciler.
// Account creation happens exclusively inside ProvisioningRepository transactions.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crewbase/crewbase/internal/db/models"
)

// AccountRepository handles account database operations
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, principal_id, email, first_name, last_name, role, department, organization_id, metadata_synced_at, created_at`

func scanAccount(row interface {
	Scan(dest ...interface{}) error
}) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.PrincipalID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Role,
		&account.Department,
		&account.OrganizationID,
		&account.MetadataSyncedAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetByPrincipalID retrieves the account provisioned for the given identity
// directory principal, or nil if the principal has not been provisioned yet.
func (r *AccountRepository) GetByPrincipalID(ctx context.Context, principalID string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE principal_id = $1
	`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, principalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// MarkMetadataSynced records that the identity directory metadata projection for
// the account has been written successfully.
func (r *AccountRepository) MarkMetadataSynced(ctx context.Context, accountID string) error {
	query := `UPDATE accounts SET metadata_synced_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to mark metadata synced: %w", err)
	}

	return nil
}

// ListUnsynced retrieves accounts whose directory metadata merge has not been
// confirmed yet, oldest first. Used by the metadata reconciler job.
func (r *AccountRepository) ListUnsynced(ctx context.Context, limit int) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE metadata_synced_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// CountByOrganization returns the number of accounts in an organization
func (r *AccountRepository) CountByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM accounts WHERE organization_id = $1`
	err := r.db.QueryRowContext(ctx, query, orgID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	return count, nil
}
