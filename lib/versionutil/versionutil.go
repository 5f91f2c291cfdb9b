package versionutil

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

var ErrInvalidVersion = errors.New("invalid semantic version")

// Version is a parsed semantic version. The zero value is not valid,
// use Parse or Validate to obtain one.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string

	// canonical is the "v" prefixed form understood by x/mod/semver.
	canonical string
}

var coerceRegex = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(.*)$`)
var extraComponentRegex = regexp.MustCompile(`^\.\d+$`)

// Parse coerces a loosely formatted version string ("v1.27", "1.2",
// " 1.2.3-rc.1 ") into a full major.minor.patch version.
// prerelease and build metadata are kept.
func Parse(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "v")

	groups := coerceRegex.FindStringSubmatch(s)
	if groups == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}

	var parts [3]int
	for i := 0; i < 3; i++ {
		if groups[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(groups[i+1])
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
		}
		parts[i] = n
	}

	v := Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}

	rest := groups[4]
	switch {
	case rest == "":
	case extraComponentRegex.MatchString(rest):
		// a fourth numeric component is treated as build metadata
		v.Build = strings.TrimPrefix(rest, ".")
	case strings.HasPrefix(rest, "-"):
		pre, build, _ := strings.Cut(rest[1:], "+")
		v.Prerelease = pre
		v.Build = build
	case strings.HasPrefix(rest, "+"):
		v.Build = rest[1:]
	default:
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}

	canonical := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		canonical += "-" + v.Prerelease
	}
	if !semver.IsValid(canonical) {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}
	v.canonical = canonical
	return v, nil
}

// Validate parses a version and rejects anything carrying prerelease or
// build metadata, only plain releases are tracked in a ledger.
func Validate(raw string) (Version, bool) {
	v, err := Parse(raw)
	if err != nil {
		return Version{}, false
	}
	if v.Prerelease != "" || v.Build != "" {
		return Version{}, false
	}
	return v, true
}

func (v Version) String() string {
	out := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		out += "-" + v.Prerelease
	}
	if v.Build != "" {
		out += "+" + v.Build
	}
	return out
}

// MajorMinor returns the "major.minor" form used for kubernetes versions.
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare follows semver precedence, build metadata is ignored.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical, other.canonical)
}

func (v Version) IsZero() bool {
	return v.canonical == ""
}

// CleanKubeVersion turns a kubernetes release tag ("v1.29.3") into its
// minor version ("1.29"). prereleases are rejected.
func CleanKubeVersion(tag string) (string, bool) {
	v, ok := Validate(strings.TrimPrefix(tag, "v"))
	if !ok {
		return "", false
	}
	return v.MajorMinor(), true
}

// CompareKube compares two "major.minor" strings, unparseable values sort
// before everything else.
func CompareKube(a, b string) int {
	va, erra := Parse(a)
	vb, errb := Parse(b)
	switch {
	case erra != nil && errb != nil:
		return strings.Compare(a, b)
	case erra != nil:
		return -1
	case errb != nil:
		return 1
	}
	return va.Compare(vb)
}
