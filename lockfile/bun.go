package lockfile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/depwatch/timemachine/models"
)

// bun.lock is JSON with commas permitted before closing brackets (JSONC
// minus comments). Trailing commas are stripped before decoding.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// bunLockfile covers the text lockfile introduced with bun 1.2. Each entry
// of "packages" is an array whose first element is "name@version" and whose
// trailing string element, when present, is the integrity hash.
type bunLockfile struct {
	Workspaces map[string]struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	} `json:"workspaces"`
	Packages map[string]json.RawMessage `json:"packages"`
}

// parseBunLock extracts dependencies from bun.lock.
func parseBunLock(content []byte, directProd, directDev map[string]bool) ([]models.SnapshotDependency, error) {
	sanitized := trailingCommaRe.ReplaceAll(content, []byte("$1"))

	var lockFile bunLockfile
	if err := json.Unmarshal(sanitized, &lockFile); err != nil {
		return nil, fmt.Errorf("%w: parse bun.lock: %v", models.ErrParse, err)
	}

	// The root workspace ("") declares dev dependencies; bun package entries
	// do not carry a dev flag themselves.
	devNames := make(map[string]bool)
	for _, ws := range lockFile.Workspaces {
		for name := range ws.DevDependencies {
			devNames[name] = true
		}
	}

	var deps []models.SnapshotDependency
	seen := make(map[string]bool)

	for key, raw := range lockFile.Packages {
		var entry []json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || len(entry) == 0 {
			continue
		}

		var selector string
		if err := json.Unmarshal(entry[0], &selector); err != nil {
			continue
		}
		name, version := splitBunSelector(selector)
		if name == "" {
			// Fall back to the map key, which is the install name.
			name = key
		}
		if name == "" || version == "" || seen[name] {
			continue
		}
		seen[name] = true

		var integrity string
		if len(entry) > 1 {
			var last string
			if err := json.Unmarshal(entry[len(entry)-1], &last); err == nil && strings.HasPrefix(last, "sha") {
				integrity = last
			}
		}

		deps = append(deps, models.SnapshotDependency{
			Name:          name,
			Version:       version,
			IsDirect:      directProd[name] || directDev[name],
			IsDev:         devNames[name] || directDev[name],
			IntegrityHash: integrity,
		})
	}

	return deps, nil
}

// splitBunSelector splits "name@1.2.3" or "@scope/name@1.2.3" into name and
// version.
func splitBunSelector(selector string) (string, string) {
	if at := strings.LastIndex(selector, "@"); at > 0 {
		return selector[:at], selector[at+1:]
	}
	return "", ""
}
