package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a project version as written in version.txt. It covers the
// parts of PEP 440 projects use in practice: a release segment of any
// length, an optional a/b/rc pre-release, .postN and .devN.
type Version struct {
	Release []int
	// PreKind is "a", "b" or "rc"; empty for final releases.
	PreKind string
	PreNum  int
	Post    int // -1 when absent
	Dev     int // -1 when absent
}

var versionPattern = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` +
	`(?:[-_.]?(post|rev|r)[-_.]?(\d*))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?$`)

// ZeroVersion stands in for a project without a version file.
var ZeroVersion = Version{Release: []int{0, 0, 0}, Post: -1, Dev: -1}

// ParseVersion reads the first word of s, case-insensitively, so
// "1.2.0 (beta)\n" parses as 1.2.0. Local labels ("+build") are ignored.
func ParseVersion(s string) (Version, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Version{}, fmt.Errorf("empty version string")
	}
	raw := strings.ToLower(fields[0])
	if i := strings.IndexByte(raw, '+'); i >= 0 {
		raw = raw[:i]
	}
	m := versionPattern.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", fields[0])
	}

	v := Version{Post: -1, Dev: -1}
	for _, part := range strings.Split(m[1], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", fields[0], err)
		}
		v.Release = append(v.Release, n)
	}
	if m[2] != "" {
		v.PreKind = preKind(m[2])
		v.PreNum = atoiDefault(m[3], 0)
	}
	// "1.0.post" and "1.0-r" are post-release 0.
	if m[4] != "" {
		v.Post = atoiDefault(m[5], 0)
	}
	if m[6] != "" {
		v.Dev = atoiDefault(m[7], 0)
	}
	return v, nil
}

func preKind(s string) string {
	switch s {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default:
		return "rc"
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// String returns the normalized form, e.g. "1.2.0rc1.post2.dev3".
func (v Version) String() string {
	parts := make([]string, len(v.Release))
	for i, n := range v.Release {
		parts[i] = strconv.Itoa(n)
	}
	var b strings.Builder
	b.WriteString(strings.Join(parts, "."))
	if v.PreKind != "" {
		fmt.Fprintf(&b, "%s%d", v.PreKind, v.PreNum)
	}
	if v.Post >= 0 {
		fmt.Fprintf(&b, ".post%d", v.Post)
	}
	if v.Dev >= 0 {
		fmt.Fprintf(&b, ".dev%d", v.Dev)
	}
	return b.String()
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than
// other. Release segments are compared with trailing zeros ignored, so
// 1.2 == 1.2.0.
func (v Version) Compare(other Version) int {
	if c := compareRelease(v.Release, other.Release); c != 0 {
		return c
	}
	if c := compareInt(v.preRank(), other.preRank()); c != 0 {
		return c
	}
	if v.PreKind != "" && v.PreKind == other.PreKind {
		if c := compareInt(v.PreNum, other.PreNum); c != 0 {
			return c
		}
	}
	if c := compareInt(v.Post, other.Post); c != 0 {
		return c
	}
	return compareDev(v.Dev, other.Dev)
}

// LessThan reports whether v is older than other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// preRank orders a bare dev release before any pre-release, and
// pre-releases before the final release.
func (v Version) preRank() int {
	switch {
	case v.PreKind == "" && v.Post < 0 && v.Dev >= 0:
		return 0
	case v.PreKind == "a":
		return 1
	case v.PreKind == "b":
		return 2
	case v.PreKind == "rc":
		return 3
	default:
		return 4
	}
}

func compareRelease(a, b []int) int {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := compareInt(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// compareDev sorts a dev build before the same version without one.
func compareDev(a, b int) int {
	switch {
	case a == b:
		return 0
	case a < 0:
		return 1
	case b < 0:
		return -1
	default:
		return compareInt(a, b)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
