package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ConstraintKind discriminates the version constraint union.
type ConstraintKind int

const (
	// ConstraintLatest matches the registry's latest hint, or the highest
	// published version when the hint is absent or invalid.
	ConstraintLatest ConstraintKind = iota
	// ConstraintExact matches a literal version string.
	ConstraintExact
	// ConstraintCaret matches compatible updates ("^1.2.3").
	ConstraintCaret
	// ConstraintTilde matches patch updates ("~1.2.3").
	ConstraintTilde
	// ConstraintRange matches ">=min <max".
	ConstraintRange
)

// Constraint is a parsed version constraint. It is a pure value derived from
// a string; Min/Max are only set for ConstraintRange.
type Constraint struct {
	Kind    ConstraintKind
	Version string
	Min     string
	Max     string
}

// String renders the constraint back in its source notation.
func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintExact:
		return c.Version
	case ConstraintCaret:
		return "^" + c.Version
	case ConstraintTilde:
		return "~" + c.Version
	case ConstraintRange:
		return ">=" + c.Min + " <" + c.Max
	default:
		return "latest"
	}
}

// ParseConstraint parses a version constraint string. Empty or "latest"
// means Latest; a leading '^' or '~' selects caret/tilde matching; a string
// containing both ">=" and "<" tokens is a range; anything else is exact.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)

	if s == "" || s == "latest" {
		return Constraint{Kind: ConstraintLatest}, nil
	}

	if rest, ok := strings.CutPrefix(s, "^"); ok {
		return Constraint{Kind: ConstraintCaret, Version: rest}, nil
	}

	if rest, ok := strings.CutPrefix(s, "~"); ok {
		return Constraint{Kind: ConstraintTilde, Version: rest}, nil
	}

	if strings.Contains(s, ">=") && strings.Contains(s, "<") {
		var min, max string
		for _, token := range strings.Fields(s) {
			if v, ok := strings.CutPrefix(token, ">="); ok {
				min = v
			} else if v, ok := strings.CutPrefix(token, "<"); ok {
				max = v
			}
		}
		if min == "" {
			return Constraint{}, fmt.Errorf("invalid range constraint %q: missing '>=' part", s)
		}
		if max == "" {
			return Constraint{}, fmt.Errorf("invalid range constraint %q: missing '<' part", s)
		}
		return Constraint{Kind: ConstraintRange, Min: min, Max: max}, nil
	}

	return Constraint{Kind: ConstraintExact, Version: s}, nil
}

// ResolveVersion picks the version satisfying a constraint among available's
// keys, or "" when nothing matches. latestHint is the registry's "latest"
// pointer: it wins for ConstraintLatest when it names a published version,
// which lets a registry pin latest behind the numerically highest release;
// an invalid hint falls back to the true maximum, so a stale pointer heals
// itself. Ties always break toward the maximum parsed semantic version;
// keys that do not parse as semver are skipped, never errors.
func ResolveVersion(c Constraint, available map[string]RegistryVersion, latestHint string) string {
	switch c.Kind {
	case ConstraintLatest:
		if latestHint != "" {
			if _, ok := available[latestHint]; ok {
				return latestHint
			}
		}
		return highestVersion(available, nil)

	case ConstraintExact:
		if _, ok := available[c.Version]; ok {
			return c.Version
		}
		return ""

	default:
		req, err := semver.NewConstraint(requirementString(c))
		if err != nil {
			return ""
		}
		return highestVersion(available, req)
	}
}

// requirementString translates caret/tilde/range constraints into the semver
// library's requirement notation.
func requirementString(c Constraint) string {
	switch c.Kind {
	case ConstraintCaret:
		return "^" + c.Version
	case ConstraintTilde:
		return "~" + c.Version
	case ConstraintRange:
		return ">=" + c.Min + ", <" + c.Max
	default:
		return ""
	}
}

// highestVersion returns the maximum parseable key, filtered by req when
// non-nil.
func highestVersion(available map[string]RegistryVersion, req *semver.Constraints) string {
	var matching []*semver.Version
	for key := range available {
		v, err := semver.StrictNewVersion(key)
		if err != nil {
			continue
		}
		if req != nil && !req.Check(v) {
			continue
		}
		matching = append(matching, v)
	}
	if len(matching) == 0 {
		return ""
	}

	sort.Sort(semver.Collection(matching))
	return matching[len(matching)-1].Original()
}

// MatchesConstraint reports whether a single version string satisfies a
// constraint.
func MatchesConstraint(c Constraint, version string) bool {
	switch c.Kind {
	case ConstraintLatest:
		return true
	case ConstraintExact:
		return version == c.Version
	default:
		req, err := semver.NewConstraint(requirementString(c))
		if err != nil {
			return false
		}
		v, err := semver.StrictNewVersion(version)
		if err != nil {
			return false
		}
		return req.Check(v)
	}
}

// CompareVersions orders two version strings. Parseable versions sort by
// semver and above unparseable ones; two unparseable strings compare
// lexically.
func CompareVersions(a, b string) int {
	va, errA := semver.StrictNewVersion(a)
	vb, errB := semver.StrictNewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
