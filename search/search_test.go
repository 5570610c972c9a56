package search

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/models"
)

func seededService(t *testing.T) *Service {
	t.Helper()
	repo, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.CreateSnapshot(&models.ExecutionSnapshot{
		ID:          "snap",
		ProjectPath: "/proj/demo",
		Status:      models.SnapshotStatusCompleted,
	}))
	require.NoError(t, repo.BulkInsertDependencies("snap", []models.SnapshotDependency{
		{Name: "pad", Version: "0.1.0"},
		{Name: "pad-left", Version: "1.0.0"},
		{Name: "left-pad", Version: "1.3.0"},
		{Name: "lodash", Version: "4.17.21"},
		{Name: "event-stream", Version: "3.3.6", PostinstallScript: "node ./flatmap.js && echo pad"},
	}))

	return NewService(repo)
}

func names(deps []models.SnapshotDependency) []string {
	return lo.Map(deps, func(d models.SnapshotDependency, _ int) string { return d.Name })
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"left", "pad"}, Tokenize("  Left   PAD "))
	assert.Empty(t, Tokenize("   "))
}

func TestDependenciesRanking(t *testing.T) {
	svc := seededService(t)

	results, err := svc.Dependencies("snap", "pad")
	require.NoError(t, err)

	// Exact name > prefix > substring > script hit.
	assert.Equal(t, []string{"pad", "pad-left", "left-pad", "event-stream"}, names(results))
}

func TestDependenciesAllTokensMustMatch(t *testing.T) {
	svc := seededService(t)

	// "pad" hits several rows, "1.3" only left-pad's version; the AND
	// semantics keep just the intersection.
	results, err := svc.Dependencies("snap", "pad 1.3")
	require.NoError(t, err)
	assert.Equal(t, []string{"left-pad"}, names(results))
}

func TestDependenciesScriptSearch(t *testing.T) {
	svc := seededService(t)

	results, err := svc.Dependencies("snap", "flatmap")
	require.NoError(t, err)
	assert.Equal(t, []string{"event-stream"}, names(results))
}

func TestDependenciesCaseInsensitive(t *testing.T) {
	svc := seededService(t)

	results, err := svc.Dependencies("snap", "LODASH")
	require.NoError(t, err)
	assert.Equal(t, []string{"lodash"}, names(results))
}

func TestDependenciesNoMatches(t *testing.T) {
	svc := seededService(t)

	results, err := svc.Dependencies("snap", "nonexistent-package")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDependenciesEmptyQuery(t *testing.T) {
	svc := seededService(t)

	_, err := svc.Dependencies("snap", "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
