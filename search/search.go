package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/models"
)

// Service executes filtered and full-text reads against the metadata
// repository. Read-only and side-effect-free.
type Service struct {
	repo *repository.Repository
}

// NewService creates a search service.
func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// List returns snapshots matching the filter, newest first.
func (s *Service) List(filter models.SnapshotFilter) ([]models.SnapshotListItem, error) {
	return s.repo.ListSnapshots(filter)
}

// rankedDependency pairs a dependency with its relevance score during
// ranking.
type rankedDependency struct {
	dep   models.SnapshotDependency
	score int
}

// Relevance weights: a hit on the package name outranks a version hit,
// which outranks a hit inside postinstall script text.
const (
	weightNameExact  = 100
	weightNamePrefix = 40
	weightName       = 20
	weightVersion    = 10
	weightScript     = 5
)

// Dependencies performs token-based matching over a snapshot's dependency
// names, versions and postinstall text, ranked by relevance. Tokens are
// whitespace-separated; a dependency matches when every token hits at least
// one field.
func (s *Service) Dependencies(snapshotID, query string) ([]models.SnapshotDependency, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty search query", models.ErrInvalidInput)
	}

	// Broad prefilter in the database (any token, any field), then exact
	// token scoring here.
	candidates, err := s.repo.SearchDependencies(snapshotID, tokens)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedDependency, 0, len(candidates))
	for _, dep := range candidates {
		score, matchesAll := scoreDependency(dep, tokens)
		if !matchesAll {
			continue
		}
		ranked = append(ranked, rankedDependency{dep: dep, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].dep.Name < ranked[j].dep.Name
	})

	results := make([]models.SnapshotDependency, len(ranked))
	for i, r := range ranked {
		results[i] = r.dep
	}
	return results, nil
}

// Tokenize lowercases and splits a query on whitespace, dropping empty
// tokens.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// scoreDependency sums per-token relevance. The boolean is false when some
// token hits no field at all.
func scoreDependency(dep models.SnapshotDependency, tokens []string) (int, bool) {
	name := strings.ToLower(dep.Name)
	version := strings.ToLower(dep.Version)
	script := strings.ToLower(dep.PostinstallScript)

	total := 0
	for _, token := range tokens {
		score := 0
		switch {
		case name == token:
			score += weightNameExact
		case strings.HasPrefix(name, token):
			score += weightNamePrefix
		case strings.Contains(name, token):
			score += weightName
		}
		if strings.Contains(version, token) {
			score += weightVersion
		}
		if script != "" && strings.Contains(script, token) {
			score += weightScript
		}
		if score == 0 {
			return 0, false
		}
		total += score
	}
	return total, true
}
