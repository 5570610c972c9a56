package insights

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultPopularPackages is the fallback reference list for typosquat
// detection when none is configured. The real list is configuration, not a
// constant; this seed covers the most-installed npm packages.
var DefaultPopularPackages = []string{
	"react", "react-dom", "lodash", "express", "axios", "chalk", "commander",
	"typescript", "webpack", "vite", "next", "vue", "jest", "eslint",
	"prettier", "moment", "dayjs", "uuid", "rxjs", "zod", "dotenv",
	"mongoose", "socket.io", "redux", "graphql", "tslib", "yargs",
	"inquirer", "glob", "minimist", "semver", "rimraf", "debug",
	"body-parser", "cors", "node-fetch", "left-pad", "event-stream",
}

// TyposquatMatch reports a package name suspiciously close to a well-known
// one.
type TyposquatMatch struct {
	Target     string  `json:"suspected_target"`
	Distance   int     `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// CheckTyposquat returns the closest popular package within maxDistance
// edits of name, or nil. Exact matches are not typosquats, and neither are
// names that themselves appear on the reference list (scoped variants are
// normalized first: "@scope/react" compares as "react").
func CheckTyposquat(name string, popular []string, maxDistance int) *TyposquatMatch {
	if maxDistance <= 0 || name == "" {
		return nil
	}

	bare := name
	if strings.HasPrefix(bare, "@") {
		if idx := strings.Index(bare, "/"); idx > 0 {
			bare = bare[idx+1:]
		}
	}

	for _, p := range popular {
		if bare == p {
			return nil
		}
	}

	var best *TyposquatMatch
	for _, target := range popular {
		distance := levenshtein.ComputeDistance(bare, target)
		if distance == 0 || distance > maxDistance {
			continue
		}
		// Short names produce meaningless single-edit neighbors; require
		// the target to be long enough that the edit is a plausible typo.
		if len(target) < distance+3 {
			continue
		}
		confidence := 1.0 - float64(distance)/float64(len(target))
		if best == nil || distance < best.Distance {
			best = &TyposquatMatch{Target: target, Distance: distance, Confidence: confidence}
		}
	}
	return best
}
