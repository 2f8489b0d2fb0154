package codegen

import (
	"github.com/Masterminds/semver/v3"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// SupportedTargets is the range of task engine versions whose rule and
// slot semantics the lowering emits.
const SupportedTargets = ">= 1.0.0, < 2.0.0"

// DefaultTarget is the engine version assumed when none is configured.
const DefaultTarget = "1.0.0"

// CheckTarget verifies that version names an engine the lowering can
// emit for.
func CheckTarget(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return ferrors.InvalidConfig("target_version", "invalid version %q: %v", version, err)
	}

	c, err := semver.NewConstraint(SupportedTargets)
	if err != nil {
		return ferrors.Internal("target", "bad constraint %q: %v", SupportedTargets, err)
	}

	if !c.Check(v) {
		return ferrors.InvalidConfig("target_version", "engine %s is not supported, want %s", v, SupportedTargets)
	}

	return nil
}
