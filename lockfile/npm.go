package lockfile

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/depwatch/timemachine/models"
)

// npmLockPackage is one entry of package-lock.json. The same shape covers
// the v1 "dependencies" map and the v2+ "packages" map.
type npmLockPackage struct {
	Version          string `json:"version"`
	Resolved         string `json:"resolved"`
	Integrity        string `json:"integrity"`
	Dev              bool   `json:"dev"`
	HasInstallScript bool   `json:"hasInstallScript"`
}

// parsePackageLock extracts dependencies from package-lock.json. NPM v7+
// lists installed packages under "packages" keyed by node_modules path; v6
// and earlier use the nested "dependencies" map.
func parsePackageLock(content []byte, directProd, directDev map[string]bool) ([]models.SnapshotDependency, error) {
	var lockFile struct {
		Dependencies map[string]npmLockPackage `json:"dependencies"`
		Packages     map[string]npmLockPackage `json:"packages"`
	}
	if err := json.Unmarshal(content, &lockFile); err != nil {
		return nil, fmt.Errorf("%w: parse package-lock.json: %v", models.ErrParse, err)
	}

	var deps []models.SnapshotDependency
	seen := make(map[string]bool)

	if len(lockFile.Packages) > 0 {
		// A package can appear hoisted at the root and again nested under
		// another dependency. Resolution must not depend on map iteration
		// order: prefer the copy with the fewest node_modules segments (the
		// one npm resolves at the root), tie-breaking on path.
		type candidate struct {
			path  string
			depth int
			info  npmLockPackage
		}
		best := make(map[string]candidate)
		for path, info := range lockFile.Packages {
			// Skip the root package entry.
			if path == "" {
				continue
			}
			// "node_modules/@babel/core" -> "@babel/core"; nested installs
			// keep only the innermost name.
			idx := strings.LastIndex(path, "node_modules/")
			if idx < 0 {
				continue
			}
			name := path[idx+len("node_modules/"):]
			if name == "" {
				continue
			}
			depth := strings.Count(path, "node_modules/")
			cur, ok := best[name]
			if !ok || depth < cur.depth || (depth == cur.depth && path < cur.path) {
				best[name] = candidate{path: path, depth: depth, info: info}
			}
		}
		for name, c := range best {
			deps = append(deps, models.SnapshotDependency{
				Name:           name,
				Version:        c.info.Version,
				IsDirect:       directProd[name] || directDev[name],
				IsDev:          c.info.Dev || directDev[name],
				HasPostinstall: c.info.HasInstallScript,
				IntegrityHash:  c.info.Integrity,
				ResolvedURL:    c.info.Resolved,
			})
		}
		return deps, nil
	}

	for name, info := range lockFile.Dependencies {
		if seen[name] {
			continue
		}
		seen[name] = true
		deps = append(deps, models.SnapshotDependency{
			Name:           name,
			Version:        info.Version,
			IsDirect:       directProd[name] || directDev[name],
			IsDev:          info.Dev || directDev[name],
			HasPostinstall: info.HasInstallScript,
			IntegrityHash:  info.Integrity,
			ResolvedURL:    info.Resolved,
		})
	}
	return deps, nil
}
