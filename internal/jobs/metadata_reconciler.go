// metadata_reconciler.go implements the MetadataReconciler background job, which
// periodically re-merges the directory metadata projection for accounts whose
// initial post-commit merge failed. Sync state is persisted in the database
// (accounts.metadata_synced_at) so the job survives restarts and multiple
// instances re-merging the same account is harmless: the payload is derived
// from the committed row, so every merge writes the same values.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/crewbase/crewbase/internal/config"
	"github.com/crewbase/crewbase/internal/db/repositories"
	"github.com/crewbase/crewbase/internal/identity"
	"github.com/crewbase/crewbase/internal/provisioning"
	"github.com/crewbase/crewbase/internal/telemetry"
)

const (
	defaultReconcilerInterval  = time.Minute
	defaultReconcilerBatchSize = 50
)

// MetadataReconciler retries failed identity-directory metadata merges until
// every provisioned account has a confirmed projection.
type MetadataReconciler struct {
	directory identity.Directory
	accounts  *repositories.AccountRepository
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
}

// NewMetadataReconciler creates a new MetadataReconciler. Zero or negative
// values in cfg fall back to a one-minute interval and a batch of 50.
func NewMetadataReconciler(
	directory identity.Directory,
	accounts *repositories.AccountRepository,
	cfg *config.ProvisioningConfig,
) *MetadataReconciler {
	interval := defaultReconcilerInterval
	batchSize := defaultReconcilerBatchSize
	if cfg != nil {
		if cfg.ReconcilerInterval > 0 {
			interval = cfg.ReconcilerInterval
		}
		if cfg.ReconcilerBatchSize > 0 {
			batchSize = cfg.ReconcilerBatchSize
		}
	}

	return &MetadataReconciler{
		directory: directory,
		accounts:  accounts,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background reconciliation loop. It runs an initial pass
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (r *MetadataReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("metadata reconciler started",
		"interval", r.interval.String(),
		"batch_size", r.batchSize)

	r.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			r.runPass(ctx)
		case <-r.stopChan:
			slog.Info("metadata reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("metadata reconciler context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (r *MetadataReconciler) Stop() {
	close(r.stopChan)
}

// runPass re-merges metadata for one batch of unsynced accounts. Failures are
// left unsynced and picked up again on the next pass.
func (r *MetadataReconciler) runPass(ctx context.Context) {
	accounts, err := r.accounts.ListUnsynced(ctx, r.batchSize)
	if err != nil {
		slog.Error("metadata reconciler: failed to list unsynced accounts", "error", err)
		return
	}

	if len(accounts) == 0 {
		return
	}

	slog.Info("metadata reconciler: retrying merges", "count", len(accounts))

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}

		err := r.directory.MergeMetadata(ctx, account.PrincipalID, provisioning.MetadataForAccount(account))
		if err != nil {
			telemetry.MetadataSyncRetriesTotal.WithLabelValues("failure").Inc()
			slog.Warn("metadata reconciler: merge failed",
				"principal_id", account.PrincipalID,
				"error", err)
			continue
		}

		telemetry.MetadataSyncRetriesTotal.WithLabelValues("success").Inc()

		if err := r.accounts.MarkMetadataSynced(ctx, account.ID); err != nil {
			// The merge landed; the account will be re-merged next pass, which
			// writes the same payload again.
			slog.Warn("metadata reconciler: failed to record sync",
				"account_id", account.ID,
				"error", err)
		}
	}
}
