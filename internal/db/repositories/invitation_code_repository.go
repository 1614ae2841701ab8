// invitation_code_repository.go implements InvitationCodeRepository: lookup of
// redeemable codes and batch minting of new ones. Consuming a code (flipping
// used to true) is deliberately NOT exposed here — that write only happens inside
// the employee-provisioning transaction owned by ProvisioningRepository, so a
// code can never be consumed without its account insert committing alongside it.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/crewbase/crewbase/internal/db/models"
)

// codeMintRetries bounds how often a batch insert retries after colliding with
// an existing unused code value.
const codeMintRetries = 5

// InvitationCodeRepository handles invitation code database operations
type InvitationCodeRepository struct {
	db *sql.DB
}

// NewInvitationCodeRepository creates a new InvitationCodeRepository
func NewInvitationCodeRepository(db *sql.DB) *InvitationCodeRepository {
	return &InvitationCodeRepository{db: db}
}

const codeColumns = `id, code, organization_id, used, used_by, created_at, used_at`

// FindUnused retrieves the unused invitation code with the given value, or nil
// if no redeemable code exists. A used code, a never-issued code, and a typo all
// look identical to the caller.
func (r *InvitationCodeRepository) FindUnused(ctx context.Context, code string) (*models.InvitationCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM invitation_codes
		WHERE code = $1 AND used = FALSE
	`

	ic := &models.InvitationCode{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&ic.ID,
		&ic.Code,
		&ic.OrganizationID,
		&ic.Used,
		&ic.UsedBy,
		&ic.CreatedAt,
		&ic.UsedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invitation code: %w", err)
	}

	return ic, nil
}

// CreateBatch mints count new single-use codes bound to the given organization.
// Value collisions with existing unused codes trip the partial unique index and
// are retried with a fresh random value.
func (r *InvitationCodeRepository) CreateBatch(ctx context.Context, orgID string, count int) ([]*models.InvitationCode, error) {
	query := `
		INSERT INTO invitation_codes (code, organization_id)
		VALUES ($1, $2)
		RETURNING ` + codeColumns + `
	`

	codes := make([]*models.InvitationCode, 0, count)
	for i := 0; i < count; i++ {
		var ic *models.InvitationCode
		var lastErr error
		for attempt := 0; attempt < codeMintRetries; attempt++ {
			value, err := models.NewCodeValue()
			if err != nil {
				return nil, err
			}

			inserted := &models.InvitationCode{}
			err = r.db.QueryRowContext(ctx, query, value, orgID).Scan(
				&inserted.ID,
				&inserted.Code,
				&inserted.OrganizationID,
				&inserted.Used,
				&inserted.UsedBy,
				&inserted.CreatedAt,
				&inserted.UsedAt,
			)
			if err == nil {
				ic = inserted
				break
			}
			if isUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to create invitation code: %w", err)
		}
		if ic == nil {
			return nil, fmt.Errorf("failed to mint unique code after %d attempts: %w", codeMintRetries, lastErr)
		}
		codes = append(codes, ic)
	}

	return codes, nil
}

// ListByOrganization retrieves all invitation codes issued for an organization,
// newest first.
func (r *InvitationCodeRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.InvitationCode, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM invitation_codes
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitation codes: %w", err)
	}
	defer rows.Close()

	codes := make([]*models.InvitationCode, 0)
	for rows.Next() {
		ic := &models.InvitationCode{}
		err := rows.Scan(
			&ic.ID,
			&ic.Code,
			&ic.OrganizationID,
			&ic.Used,
			&ic.UsedBy,
			&ic.CreatedAt,
			&ic.UsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation code: %w", err)
		}
		codes = append(codes, ic)
	}

	return codes, rows.Err()
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
