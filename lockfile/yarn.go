package lockfile

import (
	"strings"

	"github.com/depwatch/timemachine/models"
)

// parseYarnLock extracts dependencies from yarn.lock. The classic yarn
// format is not YAML; entries look like:
//
//	"@babel/core@^7.0.0", "@babel/core@^7.2.0":
//	  version "7.20.0"
//	  resolved "https://registry.yarnpkg.com/..."
//	  integrity sha512-...
//
// Yarn does not record dev flags in the lockfile, so dev classification
// falls back to the manifest's devDependencies.
func parseYarnLock(content []byte, directProd, directDev map[string]bool) ([]models.SnapshotDependency, error) {
	var deps []models.SnapshotDependency
	seen := make(map[string]bool)

	var currentName, currentVersion, currentResolved, currentIntegrity string

	flush := func() {
		if currentName == "" || currentVersion == "" {
			return
		}
		key := currentName + "@" + currentVersion
		if !seen[key] {
			seen[key] = true
			deps = append(deps, models.SnapshotDependency{
				Name:          currentName,
				Version:       currentVersion,
				IsDirect:      directProd[currentName] || directDev[currentName],
				IsDev:         directDev[currentName],
				IntegrityHash: currentIntegrity,
				ResolvedURL:   currentResolved,
			})
		}
		currentName, currentVersion, currentResolved, currentIntegrity = "", "", "", ""
	}

	for _, rawLine := range strings.Split(string(content), "\n") {
		line := strings.TrimRight(rawLine, "\r")

		if line == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		// A non-indented line ending with ":" starts a new entry.
		if !strings.HasPrefix(line, " ") && strings.HasSuffix(line, ":") {
			flush()
			currentName = yarnEntryName(strings.TrimSuffix(line, ":"))
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "version "):
			currentVersion = strings.Trim(strings.TrimPrefix(trimmed, "version "), "\"")
		case strings.HasPrefix(trimmed, "resolved "):
			currentResolved = strings.Trim(strings.TrimPrefix(trimmed, "resolved "), "\"")
		case strings.HasPrefix(trimmed, "integrity "):
			currentIntegrity = strings.TrimSpace(strings.TrimPrefix(trimmed, "integrity "))
		}
	}
	flush()

	return deps, nil
}

// yarnEntryName extracts the package name from an entry header like
// `"@babel/core@^7.0.0", "@babel/core@^7.2.0"`. The name is everything
// before the last "@" of the first selector.
func yarnEntryName(header string) string {
	first := header
	if idx := strings.Index(header, ","); idx > 0 {
		first = header[:idx]
	}
	first = strings.Trim(strings.TrimSpace(first), "\"")
	if at := strings.LastIndex(first, "@"); at > 0 {
		return first[:at]
	}
	return first
}
