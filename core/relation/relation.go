// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package relation describes the integration points a unit declares
// towards its peers: the relation kinds, their cardinality, and the flat
// string fields each side is expected to publish.
package relation

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Life describes the lifecycle state of one relation instance.
type Life string

const (
	// Pending indicates the relation instance has been created but the
	// peer has not joined yet.
	Pending Life = "pending"

	// Joined indicates the peer is connected and may publish fields.
	Joined Life = "joined"

	// Departed indicates the peer has gone away. Any data observed
	// from it is stale and must be discarded, not merely ignored.
	Departed Life = "departed"
)

// Format describes the basic well-formedness check applied to a
// relation field's value at resolution time.
type Format string

const (
	// FormatText accepts any non-empty string.
	FormatText Format = "text"

	// FormatSecret accepts any non-empty string; values are never
	// logged verbatim.
	FormatSecret Format = "secret"

	// FormatURL requires an absolute URL with a scheme and host.
	FormatURL Format = "url"

	// FormatPort requires a decimal port number in [1, 65535].
	FormatPort Format = "port"

	// FormatJSON requires a syntactically valid JSON document.
	FormatJSON Format = "json"
)

// Field declares one key the remote side of a relation is expected to
// publish, and how its value is checked.
type Field struct {
	Name   string
	Format Format
}

// Declaration describes a single relation kind the unit supports, as it
// would appear in the unit's metadata.
type Declaration struct {
	// Kind is the relation name, e.g. "legend-db".
	Kind string

	// Interface is the protocol spoken over the relation; both sides
	// must declare the same interface to be related.
	Interface string

	// Optional relations never prevent the unit from becoming active.
	Optional bool

	// Limit is the maximum number of instances of this kind that are
	// honoured. Joined instances beyond the limit are ignored with a
	// warning. Zero means unlimited.
	Limit int

	// RemoteFields are the fields the peer must publish before the
	// relation's data is considered complete.
	RemoteFields []Field
}

// Validate returns an error if the declaration is malformed.
func (d Declaration) Validate() error {
	if d.Kind == "" {
		return errors.NotValidf("relation declaration with empty kind")
	}
	if d.Interface == "" {
		return errors.NotValidf("relation %q with empty interface", d.Kind)
	}
	if d.Limit < 0 {
		return errors.NotValidf("relation %q with negative limit", d.Kind)
	}
	seen := set.NewStrings()
	for _, f := range d.RemoteFields {
		if f.Name == "" {
			return errors.NotValidf("relation %q with unnamed field", d.Kind)
		}
		if seen.Contains(f.Name) {
			return errors.NotValidf("relation %q with duplicate field %q", d.Kind, f.Name)
		}
		seen.Add(f.Name)
		switch f.Format {
		case FormatText, FormatSecret, FormatURL, FormatPort, FormatJSON:
		default:
			return errors.NotValidf("relation %q field %q format %q", d.Kind, f.Name, f.Format)
		}
	}
	return nil
}

// ValidateAll validates a full declaration set, additionally rejecting
// duplicate kinds.
func ValidateAll(decls []Declaration) error {
	kinds := set.NewStrings()
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			return errors.Trace(err)
		}
		if kinds.Contains(d.Kind) {
			return errors.NotValidf("duplicate relation kind %q", d.Kind)
		}
		kinds.Add(d.Kind)
	}
	return nil
}
