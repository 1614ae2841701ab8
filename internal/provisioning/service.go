// Package provisioning implements the account-provisioning workflow: turning a
// bare authenticated principal into either an organization admin (creating the
// organization) or an invited employee (consuming a single-use invitation code).
//
// Consistency model: the PostgreSQL write is transactional and authoritative.
// The identity directory metadata merge happens after commit and is best-effort —
// if it fails, the call reports failure so the caller can retry, but the
// committed rows stand and the metadata reconciler job retries the merge
// out-of-band. The service never rolls back a committed transaction.
//
// Concurrency model: the service is stateless. The only contended resources are
// the invitation code row (protected by the conditional UPDATE inside
// ProvisioningRepository) and the one-account-per-principal invariant (protected
// by the unique constraint). No application-level locks exist, so any number of
// instances can run behind a load balancer.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crewbase/crewbase/internal/config"
	"github.com/crewbase/crewbase/internal/db/models"
	"github.com/crewbase/crewbase/internal/db/repositories"
	"github.com/crewbase/crewbase/internal/identity"
	"github.com/crewbase/crewbase/internal/telemetry"
	"github.com/crewbase/crewbase/internal/validation"
)

const (
	defaultDirectoryTimeout = 10 * time.Second
	defaultDatabaseTimeout  = 5 * time.Second
)

// Service orchestrates the provisioning workflow across the identity directory
// and the relational stores.
type Service struct {
	directory identity.Directory
	accounts  *repositories.AccountRepository
	codes     *repositories.InvitationCodeRepository
	writes    *repositories.ProvisioningRepository

	directoryTimeout time.Duration
	databaseTimeout  time.Duration
}

// NewService creates a provisioning service. Zero timeout values in cfg fall
// back to defaults so a partially configured deployment never waits unbounded.
func NewService(
	directory identity.Directory,
	accounts *repositories.AccountRepository,
	codes *repositories.InvitationCodeRepository,
	writes *repositories.ProvisioningRepository,
	cfg *config.ProvisioningConfig,
) *Service {
	directoryTimeout := defaultDirectoryTimeout
	databaseTimeout := defaultDatabaseTimeout
	if cfg != nil {
		if cfg.DirectoryTimeout > 0 {
			directoryTimeout = cfg.DirectoryTimeout
		}
		if cfg.DatabaseTimeout > 0 {
			databaseTimeout = cfg.DatabaseTimeout
		}
	}

	return &Service{
		directory:        directory,
		accounts:         accounts,
		codes:            codes,
		writes:           writes,
		directoryTimeout: directoryTimeout,
		databaseTimeout:  databaseTimeout,
	}
}

// MetadataForAccount builds the directory metadata projection for a provisioned
// account. The same payload is produced by the initial merge and by the
// reconciler's retries, so the merge is idempotent.
func MetadataForAccount(account *models.Account) map[string]any {
	return map[string]any{
		"onboardingCompleted": true,
		"role":                string(account.Role),
		"companyId":           account.OrganizationID,
	}
}

// ProvisionEmployee provisions the principal as an employee of the organization
// that owns the given invitation code, consuming the code exactly once.
func (s *Service) ProvisionEmployee(ctx context.Context, principalID string, department *string, invitationCode string) error {
	start := time.Now()
	err := s.provisionEmployee(ctx, principalID, department, invitationCode)

	telemetry.ProvisioningAttemptsTotal.WithLabelValues("employee", outcomeLabel(err)).Inc()
	telemetry.ProvisioningDuration.WithLabelValues("employee").Observe(time.Since(start).Seconds())

	return err
}

func (s *Service) provisionEmployee(ctx context.Context, principalID string, department *string, invitationCode string) error {
	if err := validation.Department(department); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	principal, err := s.resolvePrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	existing, err := s.findExistingAccount(ctx, principalID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Already provisioned: success without re-running the write. A lagging
		// metadata projection gets one more inline merge attempt.
		s.ensureMetadataSynced(ctx, existing)
		return nil
	}

	code, ok := validation.NormalizeInvitationCode(invitationCode)
	if !ok {
		// A code of the wrong shape can never match a stored code; to the caller
		// this is the same as a code that was never issued.
		return ErrInvalidCode
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.databaseTimeout)
	defer cancel()

	codeRow, err := s.codes.FindUnused(lookupCtx, code)
	if err != nil {
		return fmt.Errorf("invitation code lookup: %w", err)
	}
	if codeRow == nil {
		return ErrInvalidCode
	}

	account := &models.Account{
		PrincipalID:    principal.ID,
		Email:          principal.Email,
		FirstName:      principal.FirstName,
		LastName:       principal.LastName,
		Role:           models.RoleEmployee,
		Department:     department,
		OrganizationID: codeRow.OrganizationID,
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.databaseTimeout)
	defer cancel()

	err = s.writes.CreateEmployeeAccount(writeCtx, account, codeRow.ID)
	switch {
	case errors.Is(err, repositories.ErrCodeAlreadyUsed):
		// Lost the claim race. Indistinguishable from a bad code.
		return ErrInvalidCode
	case errors.Is(err, repositories.ErrAccountExists):
		// A concurrent call for the same principal won; it owns the metadata merge.
		return nil
	case err != nil:
		return fmt.Errorf("transactional write: %w", err)
	}

	return s.syncMetadata(ctx, account)
}

// ProvisionAdmin provisions the principal as the admin of a newly created
// organization.
func (s *Service) ProvisionAdmin(ctx context.Context, principalID, companyName string, companyWebsite, companyLogo *string) error {
	start := time.Now()
	err := s.provisionAdmin(ctx, principalID, companyName, companyWebsite, companyLogo)

	telemetry.ProvisioningAttemptsTotal.WithLabelValues("admin", outcomeLabel(err)).Inc()
	telemetry.ProvisioningDuration.WithLabelValues("admin").Observe(time.Since(start).Seconds())

	return err
}

func (s *Service) provisionAdmin(ctx context.Context, principalID, companyName string, companyWebsite, companyLogo *string) error {
	if err := validation.CompanyName(companyName); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validation.WebURL(companyWebsite); err != nil {
		return fmt.Errorf("%w: company website: %v", ErrValidation, err)
	}
	if err := validation.WebURL(companyLogo); err != nil {
		return fmt.Errorf("%w: company logo: %v", ErrValidation, err)
	}

	principal, err := s.resolvePrincipal(ctx, principalID)
	if err != nil {
		return err
	}

	existing, err := s.findExistingAccount(ctx, principalID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.ensureMetadataSynced(ctx, existing)
		return nil
	}

	org := &models.Organization{
		Name:    strings.TrimSpace(companyName),
		Website: companyWebsite,
		LogoURL: companyLogo,
	}
	account := &models.Account{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		FirstName:   principal.FirstName,
		LastName:    principal.LastName,
		Role:        models.RoleAdmin,
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.databaseTimeout)
	defer cancel()

	err = s.writes.CreateAdminAccount(writeCtx, org, account)
	switch {
	case errors.Is(err, repositories.ErrAccountExists):
		return nil
	case err != nil:
		return fmt.Errorf("transactional write: %w", err)
	}

	return s.syncMetadata(ctx, account)
}

// resolvePrincipal reads the principal from the identity directory. A missing
// user or a profile without first/last name is not repairable here and maps to
// ErrPrincipalNotFound.
func (s *Service) resolvePrincipal(ctx context.Context, principalID string) (*identity.Principal, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.directoryTimeout)
	defer cancel()

	principal, err := s.directory.GetPrincipal(lookupCtx, principalID)
	if err != nil {
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if principal == nil || principal.FirstName == "" || principal.LastName == "" {
		return nil, ErrPrincipalNotFound
	}

	return principal, nil
}

func (s *Service) findExistingAccount(ctx context.Context, principalID string) (*models.Account, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.databaseTimeout)
	defer cancel()

	account, err := s.accounts.GetByPrincipalID(lookupCtx, principalID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	return account, nil
}

// syncMetadata merges the metadata projection into the directory after the
// relational write has committed. A merge failure is reported to the caller as
// ErrMetadataSync but never unwinds the committed transaction.
func (s *Service) syncMetadata(ctx context.Context, account *models.Account) error {
	mergeCtx, cancel := context.WithTimeout(ctx, s.directoryTimeout)
	defer cancel()

	if err := s.directory.MergeMetadata(mergeCtx, account.PrincipalID, MetadataForAccount(account)); err != nil {
		slog.Error("identity metadata merge failed after commit",
			"principal_id", account.PrincipalID,
			"stage", "metadata_merge",
			"error", err)
		return fmt.Errorf("%w: %v", ErrMetadataSync, err)
	}

	markCtx, cancel := context.WithTimeout(ctx, s.databaseTimeout)
	defer cancel()

	if err := s.accounts.MarkMetadataSynced(markCtx, account.ID); err != nil {
		// The merge reached the directory; if this bookkeeping write is lost the
		// reconciler re-merges the same payload, which is harmless.
		slog.Warn("failed to record metadata sync",
			"principal_id", account.PrincipalID,
			"error", err)
	}

	return nil
}

// ensureMetadataSynced retries the metadata merge for an already-provisioned
// account whose projection is still unsynced. Failures are logged only: the
// account exists, so the call is a success, and the reconciler remains the
// durable fallback.
func (s *Service) ensureMetadataSynced(ctx context.Context, account *models.Account) {
	if account.MetadataSyncedAt != nil {
		return
	}
	if err := s.syncMetadata(ctx, account); err != nil {
		slog.Warn("inline metadata re-sync failed; reconciler will retry",
			"principal_id", account.PrincipalID,
			"error", err)
	}
}

// outcomeLabel maps a workflow error to the Prometheus outcome label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal_not_found"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrMetadataSync):
		return "metadata_sync_failed"
	default:
		return "transient"
	}
}
