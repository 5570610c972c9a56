package insights

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/flanksource/commons/logger"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/models"
)

// Score penalties per severity. The security score starts at 100 and is
// floored at 0; dismissed insights do not count.
var severityPenalty = map[models.Severity]int{
	models.SeverityCritical: 25,
	models.SeverityHigh:     15,
	models.SeverityMedium:   8,
	models.SeverityLow:      3,
	models.SeverityInfo:     0,
}

// Config controls typosquat detection. Both values are configuration, not
// constants: the threshold and reference list come from the config file.
type Config struct {
	TyposquatMaxDistance int
	PopularPackages      []string
}

// DefaultConfig returns the analyzer defaults used when no configuration is
// present.
func DefaultConfig() Config {
	return Config{
		TyposquatMaxDistance: 2,
		PopularPackages:      DefaultPopularPackages,
	}
}

// Analyzer classifies diff output into severity-ranked security insights.
type Analyzer struct {
	repo *repository.Repository
	cfg  Config
}

// NewAnalyzer creates an insight analyzer.
func NewAnalyzer(repo *repository.Repository, cfg Config) *Analyzer {
	if cfg.TyposquatMaxDistance == 0 {
		cfg = DefaultConfig()
	}
	return &Analyzer{repo: repo, cfg: cfg}
}

// Analyze classifies a diff into insights for the diff's newer snapshot.
// Pure function of the diff content and the analyzer config: ids and
// timestamps are left empty for the persistence layer to fill, so two calls
// on equal diffs produce equal insight sets.
func (a *Analyzer) Analyze(diff *models.SnapshotDiff) []models.SecurityInsight {
	var insights []models.SecurityInsight

	postinstallAdded := make(map[string]string)
	for _, pc := range diff.PostinstallChanges {
		if pc.Kind == "added" {
			postinstallAdded[pc.Name] = pc.NewScript
		}
	}

	add := func(insight models.SecurityInsight) {
		insight.SnapshotID = diff.SnapshotBID
		insights = append(insights, insight)
	}

	for _, change := range diff.DependencyChanges {
		// Rules are additive, not mutually exclusive: one change can yield
		// several insights.
		flagged := false

		switch change.ChangeType {
		case models.ChangeAdded:
			if script, ok := postinstallAdded[change.Name]; ok {
				flagged = true
				add(models.SecurityInsight{
					InsightType:  models.InsightPostinstallAdded,
					Severity:     models.SeverityHigh,
					Title:        fmt.Sprintf("New dependency %s runs a postinstall script", change.Name),
					Description:  "Lifecycle scripts on newly added code execute automatically on install and are a standard supply-chain risk signal.",
					PackageName:  change.Name,
					CurrentValue: script,
					Recommendation: "Review the script before installing, or add the package with lifecycle scripts disabled.",
				})
			}

			if match := CheckTyposquat(change.Name, a.cfg.PopularPackages, a.cfg.TyposquatMaxDistance); match != nil {
				flagged = true
				metadata, _ := json.Marshal(match)
				add(models.SecurityInsight{
					InsightType:  models.InsightTyposquatting,
					Severity:     models.SeverityHigh,
					Title:        fmt.Sprintf("%s may be typosquatting %s", change.Name, match.Target),
					Description:  fmt.Sprintf("Package name is %d edit(s) away from the well-known package %q.", match.Distance, match.Target),
					PackageName:  change.Name,
					CurrentValue: change.NewVersion,
					Metadata:     string(metadata),
					Recommendation: fmt.Sprintf("Verify you intended %s and not %s.", change.Name, match.Target),
				})
			}

			if change.NewIntegrity == "" {
				flagged = true
				add(models.SecurityInsight{
					InsightType: models.InsightIntegrityMissing,
					Severity:    models.SeverityLow,
					Title:       fmt.Sprintf("New dependency %s has no integrity hash", change.Name),
					Description: "The lockfile records no integrity hash for this package, so tampering with the published tarball would go unnoticed.",
					PackageName: change.Name,
					CurrentValue: change.NewVersion,
				})
			}

			if !flagged {
				add(models.SecurityInsight{
					InsightType:  models.InsightNewDependency,
					Severity:     models.SeverityInfo,
					Title:        fmt.Sprintf("Dependency %s added", change.Name),
					PackageName:  change.Name,
					CurrentValue: change.NewVersion,
				})
			}

		case models.ChangeRemoved:
			add(models.SecurityInsight{
				InsightType:   models.InsightRemovedDependency,
				Severity:      models.SeverityInfo,
				Title:         fmt.Sprintf("Dependency %s removed", change.Name),
				PackageName:   change.Name,
				PreviousValue: change.OldVersion,
			})

		case models.ChangeUpdated:
			if isDowngrade(change.OldVersion, change.NewVersion) {
				flagged = true
				add(models.SecurityInsight{
					InsightType:   models.InsightVersionDowngrade,
					Severity:      models.SeverityMedium,
					Title:         fmt.Sprintf("Dependency %s downgraded", change.Name),
					Description:   "A version moving backwards can reintroduce patched vulnerabilities or indicate a pinned compromise.",
					PackageName:   change.Name,
					PreviousValue: change.OldVersion,
					CurrentValue:  change.NewVersion,
				})
			}
			if !flagged {
				add(models.SecurityInsight{
					InsightType:   models.InsightVersionChange,
					Severity:      models.SeverityInfo,
					Title:         fmt.Sprintf("Dependency %s changed version", change.Name),
					PackageName:   change.Name,
					PreviousValue: change.OldVersion,
					CurrentValue:  change.NewVersion,
				})
			}

		case models.ChangeUnchanged:
			// Integrity present before but absent or different now, for an
			// otherwise-unchanged version: strongest compromise signal we
			// detect.
			if change.OldIntegrity != "" && change.NewIntegrity != change.OldIntegrity {
				add(models.SecurityInsight{
					InsightType:   models.InsightIntegrityMismatch,
					Severity:      models.SeverityCritical,
					Title:         fmt.Sprintf("Integrity hash changed for %s without a version change", change.Name),
					Description:   "The recorded package contents differ while the version string is identical. The published artifact may have been replaced.",
					PackageName:   change.Name,
					PreviousValue: change.OldIntegrity,
					CurrentValue:  change.NewIntegrity,
					Recommendation: "Audit the installed package contents against a trusted copy before running any scripts.",
				})
			}
		}

		if change.PostinstallChanged && change.ChangeType == models.ChangeUnchanged {
			add(models.SecurityInsight{
				InsightType:   models.InsightPostinstallChange,
				Severity:      models.SeverityHigh,
				Title:         fmt.Sprintf("Postinstall script changed for %s without a version change", change.Name),
				Description:   "A lifecycle script rewritten under the same version is a supply-chain compromise vector distinct from a version bump.",
				PackageName:   change.Name,
				PreviousValue: change.OldPostinstall,
				CurrentValue:  change.NewPostinstall,
				Recommendation: "Diff the script and verify the change is expected before the next install.",
			})
		}
	}

	return insights
}

// isDowngrade reports whether the version moved backwards in semver terms.
// Non-semver versions yield no verdict: the diff engine records them
// verbatim and no ordering is inferred.
func isDowngrade(oldVersion, newVersion string) bool {
	ov, err := semver.NewVersion(oldVersion)
	if err != nil {
		return false
	}
	nv, err := semver.NewVersion(newVersion)
	if err != nil {
		return false
	}
	return nv.LessThan(ov)
}

// ComputeScore derives the 0-100 security score (higher = healthier) from a
// set of insights.
func ComputeScore(insights []models.SecurityInsight) int {
	score := 100
	for _, insight := range insights {
		if insight.IsDismissed {
			continue
		}
		score -= severityPenalty[insight.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score
}

// AnalyzeAndStore classifies a diff, replaces any previous insights for the
// target snapshot, persists the new set and updates the snapshot's security
// score. Returns the persisted insights ranked for display.
func (a *Analyzer) AnalyzeAndStore(diff *models.SnapshotDiff) ([]models.SecurityInsight, error) {
	insights := a.Analyze(diff)

	if err := a.repo.DeleteInsightsForSnapshot(nil, diff.SnapshotBID); err != nil {
		return nil, err
	}
	if err := a.repo.SaveInsights(insights); err != nil {
		return nil, err
	}

	score := ComputeScore(insights)
	if err := a.repo.UpdateSecurityScore(diff.SnapshotBID, score); err != nil {
		return nil, err
	}

	SortForDisplay(insights)
	logger.Infof("analyzed diff (%s,%s): %d insights, score %d",
		diff.SnapshotAID, diff.SnapshotBID, len(insights), score)
	return insights, nil
}

// SortForDisplay orders insights by severity descending, ties broken
// most-recent-first.
func SortForDisplay(insights []models.SecurityInsight) {
	sort.SliceStable(insights, func(i, j int) bool {
		if insights[i].Severity.Rank() != insights[j].Severity.Rank() {
			return insights[i].Severity.Rank() > insights[j].Severity.Rank()
		}
		return insights[i].CreatedAt.After(insights[j].CreatedAt)
	})
}

// Summarize tallies a snapshot's persisted insights by severity.
func (a *Analyzer) Summarize(snapshotID string) (*models.InsightSummary, error) {
	return a.repo.SummarizeInsights(snapshotID)
}

// Dismiss marks an insight dismissed; dismissing twice is a no-op success.
func (a *Analyzer) Dismiss(insightID string) error {
	return a.repo.DismissInsight(insightID)
}
