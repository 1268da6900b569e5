// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resolver merges the unit's static configuration with the data
// currently held in the relation store into one canonical, validated
// configuration snapshot. Resolution is a pure computation: no network
// calls, no mutation, and identical inputs always produce identical
// output, including an identical problem list.
package resolver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/juju/collections/transform"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/aznashwan/legend-studio-operator/core/config"
	"github.com/aznashwan/legend-studio-operator/core/relation"
	"github.com/aznashwan/legend-studio-operator/internal/relationstore"
)

var logger = loggo.GetLogger("legend.studio.resolver")

// ProblemClass partitions resolution problems by the action needed to
// clear them.
type ProblemClass string

const (
	// MissingRelation means a mandatory relation kind has zero joined
	// instances; the operator must add a relation.
	MissingRelation ProblemClass = "missing-relation"

	// MissingConfig means a required static configuration option is
	// unset; the operator must supply it.
	MissingConfig ProblemClass = "missing-config"

	// IncompleteData means a joined peer has not published every
	// required field yet; the condition clears on its own.
	IncompleteData ProblemClass = "incomplete-data"

	// InvalidValue means present data failed validation; the operator
	// must correct the offending option or relation.
	InvalidValue ProblemClass = "invalid-value"
)

// Problem records one reason the snapshot is incomplete or invalid.
type Problem struct {
	Class    ProblemClass
	Kind     string
	Instance string
	Field    string
	Reason   string
}

// String returns a human-readable description suitable for inclusion in
// the unit's status message.
func (p Problem) String() string {
	switch p.Class {
	case MissingRelation:
		return fmt.Sprintf("missing mandatory relation %q", p.Kind)
	case MissingConfig:
		return fmt.Sprintf("missing required config option %q", p.Kind)
	case IncompleteData:
		return fmt.Sprintf("relation %q has not published field %q yet", p.Kind, p.Field)
	case InvalidValue:
		if p.Instance != "" {
			return fmt.Sprintf("relation %q field %q: %s", p.Kind, p.Field, p.Reason)
		}
		return fmt.Sprintf("config option %q: %s", p.Kind, p.Reason)
	}
	return fmt.Sprintf("%s %s/%s: %s", p.Class, p.Kind, p.Field, p.Reason)
}

// InstanceData is the snapshot's view of a single joined relation
// instance whose data passed validation.
type InstanceData struct {
	ID     string
	Fields map[string]string
}

// Snapshot is the canonical configuration derived from static config
// and relation data. Snapshots are recomputed on every reconciliation
// pass and never persisted.
type Snapshot struct {
	// Static holds the coerced static configuration attributes.
	Static config.ConfigAttributes

	// Relations maps relation kind to the validated instances included
	// in this snapshot, ordered by instance id. Mandatory kinds hold
	// exactly one entry when the snapshot is complete.
	Relations map[string][]InstanceData
}

// Relation returns the first included instance of the given kind.
func (s Snapshot) Relation(kind string) (InstanceData, bool) {
	instances := s.Relations[kind]
	if len(instances) == 0 {
		return InstanceData{}, false
	}
	return instances[0], true
}

// Field returns the named field of the first included instance of the
// given kind, or the empty string.
func (s Snapshot) Field(kind, field string) string {
	inst, ok := s.Relation(kind)
	if !ok {
		return ""
	}
	return inst.Fields[field]
}

// StoreReader is the read-only view of the relation store the resolver
// consumes.
type StoreReader interface {
	Joined(kind string) []*relationstore.Instance
}

// StaticValidator inspects the coerced static configuration and reports
// problems with it. Implementations must be pure and deterministic.
type StaticValidator func(config.ConfigAttributes) []Problem

// InstanceValidator applies domain checks to a joined instance's fields
// beyond the per-field format checks, e.g. inspecting the contents of a
// JSON credentials document. Implementations must be pure.
type InstanceValidator func(kind, id string, fields map[string]string) []Problem

// Config holds the declarations and validators a Resolver applies.
type Config struct {
	Declarations     []relation.Declaration
	ValidateStatic   StaticValidator
	ValidateInstance InstanceValidator
}

// Resolver computes configuration snapshots. It holds only immutable
// declarations and is safe for reuse across passes.
type Resolver struct {
	config Config
}

// New returns a Resolver for the given declarations.
func New(config Config) (*Resolver, error) {
	if err := relation.ValidateAll(config.Declarations); err != nil {
		return nil, errors.Trace(err)
	}
	return &Resolver{config: config}, nil
}

// Declarations returns the relation declarations this resolver was
// built with.
func (r *Resolver) Declarations() []relation.Declaration {
	return r.config.Declarations
}

// Resolve combines the static configuration with the currently joined
// relation instances into a snapshot. The returned problem list is
// empty exactly when the snapshot is complete; an incomplete snapshot
// must never be rendered to the workload.
func (r *Resolver) Resolve(attrs config.ConfigAttributes, store StoreReader) (Snapshot, []Problem) {
	snapshot := Snapshot{
		Static:    attrs,
		Relations: make(map[string][]InstanceData),
	}
	var problems []Problem
	if r.config.ValidateStatic != nil {
		problems = append(problems, r.config.ValidateStatic(attrs)...)
	}
	for _, decl := range r.config.Declarations {
		joined := store.Joined(decl.Kind)
		if decl.Limit > 0 && len(joined) > decl.Limit {
			extra := transform.Slice(joined[decl.Limit:], func(i *relationstore.Instance) string {
				return i.ID()
			})
			logger.Warningf("relation %q has %d joined instances, limit is %d; ignoring %v",
				decl.Kind, len(joined), decl.Limit, extra)
			joined = joined[:decl.Limit]
		}
		if len(joined) == 0 {
			if !decl.Optional {
				problems = append(problems, Problem{
					Class: MissingRelation,
					Kind:  decl.Kind,
				})
			}
			continue
		}
		for _, inst := range joined {
			instProblems := r.validateInstance(decl, inst)
			if len(instProblems) == 0 {
				snapshot.Relations[decl.Kind] = append(snapshot.Relations[decl.Kind], InstanceData{
					ID:     inst.ID(),
					Fields: inst.RemoteFields(),
				})
				continue
			}
			if decl.Optional && !hasInvalid(instProblems) {
				// Incomplete optional data never holds the unit back;
				// the instance is simply left out of the snapshot.
				logger.Debugf("omitting incomplete optional relation %q instance %q", decl.Kind, inst.ID())
				continue
			}
			problems = append(problems, instProblems...)
		}
	}
	return snapshot, problems
}

func (r *Resolver) validateInstance(decl relation.Declaration, inst *relationstore.Instance) []Problem {
	var problems []Problem
	fields := inst.RemoteFields()
	for _, f := range decl.RemoteFields {
		value := fields[f.Name]
		if value == "" {
			problems = append(problems, Problem{
				Class:    IncompleteData,
				Kind:     decl.Kind,
				Instance: inst.ID(),
				Field:    f.Name,
			})
			continue
		}
		if reason := checkFormat(f.Format, value); reason != "" {
			problems = append(problems, Problem{
				Class:    InvalidValue,
				Kind:     decl.Kind,
				Instance: inst.ID(),
				Field:    f.Name,
				Reason:   reason,
			})
		}
	}
	if len(problems) == 0 && r.config.ValidateInstance != nil {
		problems = append(problems, r.config.ValidateInstance(decl.Kind, inst.ID(), fields)...)
	}
	return problems
}

// checkFormat returns a non-empty reason if the value does not satisfy
// the declared format. Empty values are handled by the caller.
func checkFormat(format relation.Format, value string) string {
	switch format {
	case relation.FormatText, relation.FormatSecret:
		// Presence is the only requirement.
	case relation.FormatURL:
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Sprintf("%q is not a well-formed URL", value)
		}
	case relation.FormatPort:
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Sprintf("%q is not a valid port number", value)
		}
	case relation.FormatJSON:
		if !json.Valid([]byte(value)) {
			return "value is not valid JSON"
		}
	}
	return ""
}

func hasInvalid(problems []Problem) bool {
	for _, p := range problems {
		if p.Class == InvalidValue {
			return true
		}
	}
	return false
}
