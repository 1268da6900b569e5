// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reconciler

import (
	"fmt"

	"github.com/juju/errors"
)

// Kind enumerates the external notifications the reconciler reacts to.
type Kind string

const (
	// RelationJoined reports a peer joining a relation instance.
	RelationJoined Kind = "relation-joined"

	// RelationChanged reports new peer fields on a joined instance.
	RelationChanged Kind = "relation-changed"

	// RelationDeparted reports a peer leaving a relation instance.
	RelationDeparted Kind = "relation-departed"

	// ConfigChanged reports a new static configuration.
	ConfigChanged Kind = "config-changed"

	// ResourceChanged reports that the workload container resource
	// may have appeared or vanished.
	ResourceChanged Kind = "resource-changed"

	// UpdateStatus requests a reconciliation pass with no new input.
	UpdateStatus Kind = "update-status"
)

// Event is a single notification. Events carry their payload so that
// handling them never requires a callback to the sender.
type Event struct {
	Kind Kind

	// RelationKind and RelationID identify the relation instance for
	// the relation-* kinds.
	RelationKind string
	RelationID   string

	// Peer names the remote application, set on relation-joined.
	Peer string

	// RemoteFields holds the peer's current fields, set on
	// relation-changed.
	RemoteFields map[string]string

	// Config holds the full raw static configuration, set on
	// config-changed.
	Config map[string]interface{}
}

func (e Event) String() string {
	switch e.Kind {
	case RelationJoined, RelationChanged, RelationDeparted:
		return fmt.Sprintf("%s (%s)", e.Kind, e.RelationID)
	default:
		return string(e.Kind)
	}
}

// Validate returns an error if the event is malformed.
func (e Event) Validate() error {
	switch e.Kind {
	case RelationJoined, RelationChanged, RelationDeparted:
		if e.RelationKind == "" {
			return errors.NotValidf("%q event without relation kind", e.Kind)
		}
		if e.RelationID == "" {
			return errors.NotValidf("%q event without relation id", e.Kind)
		}
	case ConfigChanged:
		if e.Config == nil {
			return errors.NotValidf("%q event without configuration", e.Kind)
		}
	case ResourceChanged, UpdateStatus:
	default:
		return errors.NotValidf("event kind %q", e.Kind)
	}
	return nil
}
