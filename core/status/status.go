// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package status holds the workload status values a unit may report to
// the orchestrator, and the conventions around them.
package status

import (
	"time"

	"github.com/juju/errors"
)

// Status represents the externally visible condition of the unit's
// workload. It is always derived from the unit's current inputs at the
// end of a reconciliation pass, never set directly by an inbound event.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

const (
	// Maintenance is set while the unit is actively working towards
	// providing its service, most notably while a freshly rendered
	// configuration is being applied to the workload. It is a
	// "spinning" state, not an error state.
	Maintenance Status = "maintenance"

	// Blocked is set when the unit cannot proceed without operator
	// intervention: a mandatory relation has no joined instance, a
	// required configuration option is unset, or the workload
	// container resource is not present.
	Blocked Status = "blocked"

	// Waiting is set when all mandatory relations are joined but a
	// peer has not yet published every field the unit needs. The
	// condition is expected to clear on its own as peers start up.
	Waiting Status = "waiting"

	// Active is set once the configuration snapshot is complete and
	// the most recent render was successfully applied to the workload.
	Active Status = "active"

	// Error is set when otherwise-present input failed validation, or
	// when the workload rejected a rendered configuration. Operator
	// correction of the offending value is required.
	Error Status = "error"
)

// KnownWorkloadStatus reports whether status is a valid unit workload
// status as understood by the orchestrator.
func (s Status) KnownWorkloadStatus() bool {
	switch s {
	case Maintenance, Blocked, Waiting, Active, Error:
		return true
	}
	return false
}

// StatusInfo holds a Status and associated information.
type StatusInfo struct {
	Status  Status
	Message string
	Data    map[string]interface{}
	Since   *time.Time
}

// Validate returns an error if the info does not hold a known workload
// status.
func (i StatusInfo) Validate() error {
	if !i.Status.KnownWorkloadStatus() {
		return errors.NotValidf("workload status %q", i.Status)
	}
	return nil
}
