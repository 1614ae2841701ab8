package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/crewbase/crewbase/internal/config"
	"github.com/crewbase/crewbase/internal/db/repositories"
	"github.com/crewbase/crewbase/internal/identity"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// recordingDirectory is an in-memory identity.Directory that records merge
// calls and can be configured to fail for specific principals.
type recordingDirectory struct {
	failFor map[string]error
	merged  []string
}

func (d *recordingDirectory) GetPrincipal(_ context.Context, _ string) (*identity.Principal, error) {
	return nil, errors.New("not used by the reconciler")
}

func (d *recordingDirectory) MergeMetadata(_ context.Context, principalID string, _ map[string]any) error {
	if err, ok := d.failFor[principalID]; ok {
		return err
	}
	d.merged = append(d.merged, principalID)
	return nil
}

func newAccountRepoForReconciler(t *testing.T) (*repositories.AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewAccountRepository(db), mock
}

var reconcilerAccountCols = []string{
	"id", "principal_id", "email", "first_name", "last_name",
	"role", "department", "organization_id", "metadata_synced_at", "created_at",
}

func expectUnsyncedBatch(mock sqlmock.Sqlmock, rows *sqlmock.Rows, limit int) {
	mock.ExpectQuery(`SELECT (.+) FROM accounts\s+WHERE metadata_synced_at IS NULL`).
		WithArgs(limit).
		WillReturnRows(rows)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewMetadataReconciler_Defaults(t *testing.T) {
	r := NewMetadataReconciler(nil, nil, nil)
	if r.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", r.interval)
	}
	if r.batchSize != 50 {
		t.Errorf("batchSize = %d, want 50", r.batchSize)
	}
}

func TestNewMetadataReconciler_ConfigOverrides(t *testing.T) {
	cfg := &config.ProvisioningConfig{
		ReconcilerInterval:  5 * time.Minute,
		ReconcilerBatchSize: 10,
	}
	r := NewMetadataReconciler(nil, nil, cfg)
	if r.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", r.interval)
	}
	if r.batchSize != 10 {
		t.Errorf("batchSize = %d, want 10", r.batchSize)
	}
}

// ---------------------------------------------------------------------------
// runPass
// ---------------------------------------------------------------------------

func TestRunPass_MergesAndMarksSynced(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{}
	r := NewMetadataReconciler(dir, repo, nil)

	rows := sqlmock.NewRows(reconcilerAccountCols).
		AddRow("acc-1", "principal-1", "a@example.com", "Ada", "Lovelace",
			"EMPLOYEE", nil, "org-1", nil, time.Now()).
		AddRow("acc-2", "principal-2", "b@example.com", "Brian", "Kernighan",
			"ADMIN", nil, "org-2", nil, time.Now())
	expectUnsyncedBatch(mock, rows, 50)

	mock.ExpectExec(`UPDATE accounts SET metadata_synced_at = NOW\(\)`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET metadata_synced_at = NOW\(\)`).
		WithArgs("acc-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(dir.merged) != 2 {
		t.Fatalf("expected 2 merges, got %d", len(dir.merged))
	}
}

func TestRunPass_MergeFailureLeavesAccountUnsynced(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{
		failFor: map[string]error{"principal-1": errors.New("directory unavailable")},
	}
	r := NewMetadataReconciler(dir, repo, nil)

	rows := sqlmock.NewRows(reconcilerAccountCols).
		AddRow("acc-1", "principal-1", "a@example.com", "Ada", "Lovelace",
			"EMPLOYEE", nil, "org-1", nil, time.Now()).
		AddRow("acc-2", "principal-2", "b@example.com", "Brian", "Kernighan",
			"ADMIN", nil, "org-2", nil, time.Now())
	expectUnsyncedBatch(mock, rows, 50)

	// Only the successful merge records sync state; acc-1 stays in the queue.
	mock.ExpectExec(`UPDATE accounts SET metadata_synced_at = NOW\(\)`).
		WithArgs("acc-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(dir.merged) != 1 || dir.merged[0] != "principal-2" {
		t.Errorf("expected only principal-2 merged, got %v", dir.merged)
	}
}

func TestRunPass_EmptyBatchDoesNothing(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{}
	r := NewMetadataReconciler(dir, repo, nil)

	expectUnsyncedBatch(mock, sqlmock.NewRows(reconcilerAccountCols), 50)

	r.runPass(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if len(dir.merged) != 0 {
		t.Errorf("expected no merges, got %v", dir.merged)
	}
}

func TestRunPass_ListFailureAborts(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{}
	r := NewMetadataReconciler(dir, repo, nil)

	mock.ExpectQuery(`SELECT (.+) FROM accounts\s+WHERE metadata_synced_at IS NULL`).
		WithArgs(50).
		WillReturnError(errors.New("connection refused"))

	r.runPass(context.Background())

	if len(dir.merged) != 0 {
		t.Errorf("expected no merges after list failure, got %v", dir.merged)
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

func TestStartStop_ExitsCleanly(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{}
	cfg := &config.ProvisioningConfig{ReconcilerInterval: time.Hour, ReconcilerBatchSize: 5}
	r := NewMetadataReconciler(dir, repo, cfg)

	// Initial pass on startup, then the hour-long ticker never fires.
	expectUnsyncedBatch(mock, sqlmock.NewRows(reconcilerAccountCols), 5)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestStart_ContextCancellation(t *testing.T) {
	repo, mock := newAccountRepoForReconciler(t)
	dir := &recordingDirectory{}
	cfg := &config.ProvisioningConfig{ReconcilerInterval: time.Hour, ReconcilerBatchSize: 5}
	r := NewMetadataReconciler(dir, repo, cfg)

	expectUnsyncedBatch(mock, sqlmock.NewRows(reconcilerAccountCols), 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not exit on context cancellation")
	}
}
