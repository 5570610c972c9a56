package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/depwatch/timemachine/models"
)

// HashBytes returns the SHA-256 hex digest of raw bytes. No canonicalization
// is applied: the digest is over the file exactly as it sits on disk, so it
// is reproducible across runs and a single-byte change flips it.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// treeEntry is one package in the canonical dependency tree encoding.
type treeEntry struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	Direct         bool   `json:"direct"`
	Dev            bool   `json:"dev"`
	HasPostinstall bool   `json:"has_postinstall"`
	Integrity      string `json:"integrity,omitempty"`
	Resolved       string `json:"resolved,omitempty"`
}

// treeDocument is the stored dependency-tree blob. Entries are sorted by
// name so the encoding, and therefore TreeHash, is stable regardless of map
// iteration order in the parsers.
type treeDocument struct {
	LockfileType models.LockfileType `json:"lockfile_type"`
	Packages     []treeEntry         `json:"packages"`
}

// BuildTreeJSON encodes the canonical dependency tree. Callers must pass
// deps already sorted by name.
func BuildTreeJSON(lockType models.LockfileType, deps []models.SnapshotDependency) ([]byte, error) {
	doc := treeDocument{
		LockfileType: lockType,
		Packages:     make([]treeEntry, 0, len(deps)),
	}
	for _, dep := range deps {
		doc.Packages = append(doc.Packages, treeEntry{
			Name:           dep.Name,
			Version:        dep.Version,
			Direct:         dep.IsDirect,
			Dev:            dep.IsDev,
			HasPostinstall: dep.HasPostinstall,
			Integrity:      dep.IntegrityHash,
			Resolved:       dep.ResolvedURL,
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode dependency tree: %v", models.ErrParse, err)
	}
	return data, nil
}

// TreeHash returns the SHA-256 hex digest of the canonical tree encoding.
func TreeHash(treeJSON []byte) string {
	return HashBytes(treeJSON)
}
