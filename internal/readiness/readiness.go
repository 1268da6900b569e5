// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package readiness derives the unit's externally visible status from
// the outcome of configuration resolution and environmental checks.
//
// The derivation applies a fixed precedence on every pass:
//
//	error    - present data failed validation, or the workload
//	           rejected the rendered configuration
//	blocked  - a mandatory relation or required config option is
//	           missing, or the container resource is absent
//	waiting  - joined peers have not published all required fields
//	active   - the snapshot is complete and the last apply succeeded
//
// Missing inputs are ordinary, user-actionable conditions and are never
// reported as errors.
package readiness

import (
	"fmt"
	"strings"

	"github.com/aznashwan/legend-studio-operator/core/status"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

// Environment carries the non-relation checks that factor into the
// unit's status.
type Environment struct {
	// ResourcePresent reports whether the workload container resource
	// (the OCI image's running container) is available to be
	// configured.
	ResourcePresent bool

	// ApplyError holds the failure from the most recent attempt to
	// apply a rendered artifact, or nil if it succeeded.
	ApplyError error
}

// Evaluate derives the unit status for one reconciliation pass. The
// result's message always names the inputs that are missing or
// rejected, so a failed pass is diagnosable from status alone.
func Evaluate(problems []resolver.Problem, env Environment) status.StatusInfo {
	byClass := make(map[resolver.ProblemClass][]resolver.Problem)
	for _, p := range problems {
		byClass[p.Class] = append(byClass[p.Class], p)
	}

	if invalid := byClass[resolver.InvalidValue]; len(invalid) > 0 {
		return status.StatusInfo{
			Status:  status.Error,
			Message: fmt.Sprintf("invalid configuration: %s", describeAll(invalid)),
		}
	}

	missingRelations := byClass[resolver.MissingRelation]
	missingConfig := byClass[resolver.MissingConfig]
	if len(missingRelations) > 0 || len(missingConfig) > 0 {
		var parts []string
		if len(missingRelations) > 0 {
			parts = append(parts, fmt.Sprintf(
				"missing mandatory relation(s): %s", joinKinds(missingRelations)))
		}
		if len(missingConfig) > 0 {
			parts = append(parts, fmt.Sprintf(
				"missing required config option(s): %s", joinKinds(missingConfig)))
		}
		return status.StatusInfo{
			Status:  status.Blocked,
			Message: strings.Join(parts, "; "),
		}
	}

	if !env.ResourcePresent {
		return status.StatusInfo{
			Status:  status.Blocked,
			Message: "workload container resource is not present",
		}
	}

	if incomplete := byClass[resolver.IncompleteData]; len(incomplete) > 0 {
		return status.StatusInfo{
			Status:  status.Waiting,
			Message: fmt.Sprintf("awaiting relation data: %s", describeIncomplete(incomplete)),
		}
	}

	if env.ApplyError != nil {
		return status.StatusInfo{
			Status:  status.Error,
			Message: fmt.Sprintf("cannot apply workload configuration: %v", env.ApplyError),
		}
	}

	return status.StatusInfo{Status: status.Active}
}

func describeAll(problems []resolver.Problem) string {
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

func describeIncomplete(problems []resolver.Problem) string {
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = fmt.Sprintf("%s (%s)", p.Kind, p.Field)
	}
	return strings.Join(parts, ", ")
}

func joinKinds(problems []resolver.Problem) string {
	parts := make([]string, len(problems))
	for i, p := range problems {
		parts[i] = p.Kind
	}
	return strings.Join(parts, ", ")
}
