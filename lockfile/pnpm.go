package lockfile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/depwatch/timemachine/models"
)

// pnpm lockfile shapes vary across major versions; this covers v6+ (package
// keys like "/name@version" or "name@version") with a fallback to the older
// "/name/version" path form.
type pnpmLockfile struct {
	Importers map[string]pnpmImporter `yaml:"importers"`
	// Top-level sections used by single-package lockfiles.
	Dependencies    map[string]pnpmRef     `yaml:"dependencies"`
	DevDependencies map[string]pnpmRef     `yaml:"devDependencies"`
	Packages        map[string]pnpmPackage `yaml:"packages"`
}

type pnpmImporter struct {
	Dependencies    map[string]pnpmRef `yaml:"dependencies"`
	DevDependencies map[string]pnpmRef `yaml:"devDependencies"`
}

// pnpmRef tolerates both "version: 1.2.3" objects and bare version strings.
type pnpmRef struct {
	Version string
}

func (r *pnpmRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Version = value.Value
		return nil
	}
	var obj struct {
		Version string `yaml:"version"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	r.Version = obj.Version
	return nil
}

type pnpmPackage struct {
	Resolution struct {
		Integrity string `yaml:"integrity"`
		Tarball   string `yaml:"tarball"`
	} `yaml:"resolution"`
	Dev              bool `yaml:"dev"`
	HasInstallScript bool `yaml:"hasInstallScript"`
	RequiresBuild    bool `yaml:"requiresBuild"`
}

// parsePnpmLock extracts dependencies from pnpm-lock.yaml.
func parsePnpmLock(content []byte, directProd, directDev map[string]bool) ([]models.SnapshotDependency, error) {
	var lockFile pnpmLockfile
	if err := yaml.Unmarshal(content, &lockFile); err != nil {
		return nil, fmt.Errorf("%w: parse pnpm-lock.yaml: %v", models.ErrParse, err)
	}

	// Dev classification from importer sections, which know which subtree a
	// package was requested from.
	devNames := make(map[string]bool)
	for name := range lockFile.DevDependencies {
		devNames[name] = true
	}
	for _, importer := range lockFile.Importers {
		for name := range importer.DevDependencies {
			devNames[name] = true
		}
	}

	var deps []models.SnapshotDependency
	seen := make(map[string]bool)

	for path, info := range lockFile.Packages {
		name, version := splitPnpmKey(path)
		if name == "" || version == "" {
			continue
		}
		key := name + "@" + version
		if seen[key] {
			continue
		}
		seen[key] = true

		deps = append(deps, models.SnapshotDependency{
			Name:           name,
			Version:        version,
			IsDirect:       directProd[name] || directDev[name],
			IsDev:          info.Dev || devNames[name] || directDev[name],
			HasPostinstall: info.HasInstallScript || info.RequiresBuild,
			IntegrityHash:  info.Resolution.Integrity,
			ResolvedURL:    info.Resolution.Tarball,
		})
	}

	// Lockfiles without a packages section still declare top-level deps.
	if len(deps) == 0 {
		for name, ref := range lockFile.Dependencies {
			deps = append(deps, models.SnapshotDependency{
				Name:     name,
				Version:  cleanPnpmVersion(ref.Version),
				IsDirect: true,
			})
		}
		for name, ref := range lockFile.DevDependencies {
			deps = append(deps, models.SnapshotDependency{
				Name:     name,
				Version:  cleanPnpmVersion(ref.Version),
				IsDirect: true,
				IsDev:    true,
			})
		}
	}

	return deps, nil
}

// splitPnpmKey turns a packages key into (name, version). Handles
// "/@scope/name@1.2.3", "name@1.2.3", and the legacy "/name/1.2.3" and
// "/@scope/name/1.2.3" path forms.
func splitPnpmKey(key string) (string, string) {
	key = strings.TrimPrefix(key, "/")

	// Peer-dependency suffixes like "(react@18.2.0)" are not part of the
	// version.
	if idx := strings.Index(key, "("); idx > 0 {
		key = key[:idx]
	}

	if at := strings.LastIndex(key, "@"); at > 0 {
		return key[:at], key[at+1:]
	}

	parts := strings.Split(key, "/")
	if strings.HasPrefix(key, "@") && len(parts) >= 3 {
		return parts[0] + "/" + parts[1], parts[2]
	}
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

// cleanPnpmVersion drops peer-dependency suffixes from resolved versions,
// e.g. "7.20.0(react@18.2.0)" -> "7.20.0".
func cleanPnpmVersion(version string) string {
	if idx := strings.Index(version, "("); idx > 0 {
		return version[:idx]
	}
	return version
}
