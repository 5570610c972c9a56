package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flanksource/commons/logger"

	"github.com/depwatch/timemachine/models"
)

// ManifestName is the project manifest filename.
const ManifestName = "package.json"

// candidate lockfiles in resolution priority order, matching ecosystem
// convention: pnpm > yarn > npm > bun.
var candidates = []struct {
	File string
	Type models.LockfileType
}{
	{"pnpm-lock.yaml", models.LockfilePnpm},
	{"yarn.lock", models.LockfileYarn},
	{"package-lock.json", models.LockfileNpm},
	{"bun.lock", models.LockfileBun},
}

// LockfileName returns the filename for a lockfile type.
func LockfileName(t models.LockfileType) string {
	for _, c := range candidates {
		if c.Type == t {
			return c.File
		}
	}
	return ""
}

// Resolve finds the project's lockfile by checking known filenames in
// priority order. Returns LockfileNone and an empty path when the project
// has no lockfile; that is not an error.
func Resolve(projectPath string) (models.LockfileType, string, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		return models.LockfileNone, "", fmt.Errorf("%w: project path %q: %v", models.ErrInvalidInput, projectPath, err)
	}
	if !info.IsDir() {
		return models.LockfileNone, "", fmt.Errorf("%w: project path %q is not a directory", models.ErrInvalidInput, projectPath)
	}

	for _, c := range candidates {
		path := filepath.Join(projectPath, c.File)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return c.Type, path, nil
		}
	}
	return models.LockfileNone, "", nil
}

// manifest is the subset of package.json the parser needs.
type manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// readManifest parses the project's package.json. A missing manifest yields
// an empty manifest, not an error: zero-dependency projects are valid.
func readManifest(projectPath string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(projectPath, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return &manifest{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrParse, ManifestName, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", models.ErrParse, ManifestName, err)
	}
	return &m, nil
}

// directSets returns the sets of direct prod and dev dependency names
// declared by the manifest.
func (m *manifest) directSets() (prod map[string]bool, dev map[string]bool) {
	prod = make(map[string]bool, len(m.Dependencies))
	dev = make(map[string]bool, len(m.DevDependencies))
	for name := range m.Dependencies {
		prod[name] = true
	}
	for name := range m.DevDependencies {
		dev[name] = true
	}
	return prod, dev
}

// Parser resolves and parses project lockfiles into flat dependency rows
// plus a canonical tree JSON blob. It is the production implementation of
// the capture service's tree-parser collaborator.
type Parser struct{}

// NewParser creates a lockfile parser.
func NewParser() *Parser { return &Parser{} }

// ParseTree reads the project's lockfile and manifest and returns the
// resolved dependency list (classified direct/transitive and prod/dev, with
// postinstall scripts detected) together with the canonical dependency-tree
// JSON. Projects without a lockfile yield an empty list.
func (p *Parser) ParseTree(projectPath string) ([]models.SnapshotDependency, []byte, error) {
	lockType, lockPath, err := Resolve(projectPath)
	if err != nil {
		return nil, nil, err
	}

	man, err := readManifest(projectPath)
	if err != nil {
		return nil, nil, err
	}
	directProd, directDev := man.directSets()

	var deps []models.SnapshotDependency
	if lockType != models.LockfileNone {
		content, err := os.ReadFile(lockPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read %s: %v", models.ErrParse, lockPath, err)
		}
		switch lockType {
		case models.LockfileNpm:
			deps, err = parsePackageLock(content, directProd, directDev)
		case models.LockfilePnpm:
			deps, err = parsePnpmLock(content, directProd, directDev)
		case models.LockfileYarn:
			deps, err = parseYarnLock(content, directProd, directDev)
		case models.LockfileBun:
			deps, err = parseBunLock(content, directProd, directDev)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	enrichPostinstall(projectPath, deps)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	treeJSON, err := BuildTreeJSON(lockType, deps)
	if err != nil {
		return nil, nil, err
	}

	logger.Debugf("parsed %d dependencies from %s lockfile in %s", len(deps), lockType, projectPath)
	return deps, treeJSON, nil
}

// enrichPostinstall fills in postinstall script text from installed package
// manifests under node_modules. Lockfiles only flag that an install script
// exists; the text lives in each package's own package.json. Missing
// node_modules entries are skipped, the flag from the lockfile stands.
func enrichPostinstall(projectPath string, deps []models.SnapshotDependency) {
	for i := range deps {
		pkgManifest := filepath.Join(projectPath, "node_modules", filepath.FromSlash(deps[i].Name), ManifestName)
		data, err := os.ReadFile(pkgManifest)
		if err != nil {
			continue
		}
		var pkg struct {
			Scripts map[string]string `json:"scripts"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			continue
		}
		if script, ok := pkg.Scripts["postinstall"]; ok && script != "" {
			deps[i].HasPostinstall = true
			deps[i].PostinstallScript = script
		}
	}
}
