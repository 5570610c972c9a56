package client

import (
	"github.com/flanksource/commons/logger"

	"github.com/depwatch/timemachine/capture"
	"github.com/depwatch/timemachine/config"
	"github.com/depwatch/timemachine/diffengine"
	"github.com/depwatch/timemachine/insights"
	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/internal/storage"
	"github.com/depwatch/timemachine/lockfile"
	"github.com/depwatch/timemachine/models"
	"github.com/depwatch/timemachine/replay"
	"github.com/depwatch/timemachine/search"
)

// Client is the facade external collaborators (CLI, desktop IPC layer, file
// watcher) use to drive the time-machine. It wires the services over one
// shared repository and blob store and exposes the public operations.
type Client struct {
	repo     *repository.Repository
	store    *storage.BlobStore
	capture  *capture.Service
	diffs    *diffengine.Engine
	replays  *replay.Service
	analyzer *insights.Analyzer
	searches *search.Service
}

// New opens the database and blob store under the configured directories
// and wires the services.
func New(cfg *config.Config) (*Client, error) {
	repo, err := repository.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewBlobStore(cfg.StorageDir)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	parser := lockfile.NewParser()
	return &Client{
		repo:     repo,
		store:    store,
		capture:  capture.NewService(repo, store, parser),
		diffs:    diffengine.NewEngine(repo),
		replays:  replay.NewService(repo, parser),
		analyzer: insights.NewAnalyzer(repo, cfg.InsightConfig()),
		searches: search.NewService(repo),
	}, nil
}

// Close releases the underlying database connection.
func (c *Client) Close() error {
	return c.repo.Close()
}

// CaptureSnapshot takes a snapshot of the project's dependency state.
func (c *Client) CaptureSnapshot(projectPath string, trigger models.TriggerSource) (*capture.Result, error) {
	return c.capture.Capture(projectPath, trigger)
}

// GetSnapshot fetches a snapshot by id.
func (c *Client) GetSnapshot(id string) (*models.ExecutionSnapshot, error) {
	return c.repo.GetSnapshot(id)
}

// GetSnapshotWithDependencies fetches a snapshot with its dependency list.
func (c *Client) GetSnapshotWithDependencies(id string) (*models.SnapshotWithDependencies, error) {
	return c.repo.GetSnapshotWithDependencies(id)
}

// ListSnapshots returns snapshots matching the filter, newest first.
func (c *Client) ListSnapshots(filter models.SnapshotFilter) ([]models.SnapshotListItem, error) {
	return c.searches.List(filter)
}

// GetLatestSnapshot returns the most recent Completed snapshot for a
// project.
func (c *Client) GetLatestSnapshot(projectPath string) (*models.ExecutionSnapshot, error) {
	return c.repo.GetLatestSnapshot(projectPath)
}

// DiffSnapshots compares snapshot b against snapshot a.
func (c *Client) DiffSnapshots(aID, bID string) (*models.SnapshotDiff, error) {
	return c.diffs.Diff(aID, bID)
}

// AnalyzeSnapshots diffs two snapshots and persists the resulting security
// insights for the newer one, updating its security score.
func (c *Client) AnalyzeSnapshots(aID, bID string) ([]models.SecurityInsight, error) {
	diff, err := c.diffs.Diff(aID, bID)
	if err != nil {
		return nil, err
	}
	return c.analyzer.AnalyzeAndStore(diff)
}

// VerifyReplay checks a stored snapshot against the project's live
// lockfile.
func (c *Client) VerifyReplay(snapshotID, projectPath string, explain bool) (*replay.Result, error) {
	return c.replays.Verify(snapshotID, projectPath, explain)
}

// ListInsights returns a snapshot's insights ranked for display.
func (c *Client) ListInsights(snapshotID string) ([]models.SecurityInsight, error) {
	return c.repo.ListInsights(snapshotID)
}

// DismissInsight marks an insight dismissed (idempotent).
func (c *Client) DismissInsight(id string) error {
	return c.analyzer.Dismiss(id)
}

// InsightSummary tallies a snapshot's insights by severity.
func (c *Client) InsightSummary(snapshotID string) (*models.InsightSummary, error) {
	return c.analyzer.Summarize(snapshotID)
}

// SearchDependencies runs a ranked full-text search over a snapshot's
// dependencies.
func (c *Client) SearchDependencies(snapshotID, query string) ([]models.SnapshotDependency, error) {
	return c.searches.Dependencies(snapshotID, query)
}

// PruneSnapshots keeps the N most recent Completed snapshots per project,
// deleting older ones together with their blob directories.
func (c *Client) PruneSnapshots(keepPerProject int) (int, error) {
	deleted, err := c.repo.PruneSnapshots(keepPerProject)
	for _, id := range deleted {
		// Metadata is already gone; a failed blob removal leaves an orphan
		// directory that CleanupOrphans will collect.
		if blobErr := c.store.Delete(id); blobErr != nil {
			logger.Warnf("failed to remove blobs of pruned snapshot %s: %v", id, blobErr)
		}
	}
	return len(deleted), err
}

// PruneDiffCache removes diff-cache rows older than the given number of
// days.
func (c *Client) PruneDiffCache(olderThanDays int) (int64, error) {
	return c.repo.PruneDiffCache(olderThanDays)
}

// CleanupOrphans removes blob directories with no metadata row and sweeps
// temp files from interrupted writes.
func (c *Client) CleanupOrphans() (int, error) {
	valid, err := c.repo.AllSnapshotIDs()
	if err != nil {
		return 0, err
	}
	return c.store.CleanupOrphans(valid)
}

// GetSettings returns the persisted time-machine settings row.
func (c *Client) GetSettings() (*models.Settings, error) {
	return c.repo.GetSettings()
}

// SaveSettings persists the settings row.
func (c *Client) SaveSettings(settings *models.Settings) error {
	return c.repo.SaveSettings(settings)
}
