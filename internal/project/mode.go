// Package project classifies a project folder into an operating mode and
// stores the per-project settings that steer classification.
package project

import (
	"fmt"
	"strings"
)

// Mode is how the project's payload relates to the manager's own toolkit.
type Mode string

const (
	// ModeUnset is only meaningful in an Override.
	ModeUnset Mode = ""
	// ModePySeed projects keep their payload in project/ with manifests at
	// project/requirements/. Updates replace only that subtree.
	ModePySeed Mode = "PYSEED_PROJECT"
	// ModeExternal projects mirror an arbitrary remote repository into project/.
	ModeExternal Mode = "EXTERNAL_REPO"
	// ModeTemplate is a fresh, un-initialized copy of the template.
	ModeTemplate Mode = "TEMPLATE_MODE"
)

// Modes lists every valid mode.
var Modes = []Mode{ModePySeed, ModeExternal, ModeTemplate}

// ParseMode accepts the stored names and the short aliases used on the
// command line ("pyseed", "external", "template").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "":
		return ModeUnset, nil
	case "pyseed", "pyseed_project":
		return ModePySeed, nil
	case "external", "external_repo":
		return ModeExternal, nil
	case "template", "template_mode":
		return ModeTemplate, nil
	default:
		return ModeUnset, fmt.Errorf("unknown project mode %q (want pyseed, external or template)", s)
	}
}

// Short returns the command-line alias.
func (m Mode) Short() string {
	switch m {
	case ModePySeed:
		return "pyseed"
	case ModeExternal:
		return "external"
	case ModeTemplate:
		return "template"
	default:
		return "unset"
	}
}

// WholeTree reports whether updates replace project/ with the entire remote
// repository rather than its project/ subtree.
func (m Mode) WholeTree() bool {
	return m != ModePySeed
}
