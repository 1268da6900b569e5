// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package relationstore implements the unit's local cache of relation
// data: the fields this unit has published per relation instance, and
// the last-observed fields published by each connected peer.
package relationstore

import (
	"sort"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/aznashwan/legend-studio-operator/core/relation"
)

var logger = loggo.GetLogger("legend.studio.relationstore")

// PeerWriter pushes this unit's locally published fields for a relation
// instance out to the connected peer. Implementations talk to the
// orchestrator; the store only records what was last written.
type PeerWriter interface {
	WriteFields(kind, id string, fields map[string]string) error
}

// Instance holds the store's view of a single relation instance. The
// zero value is not useful; instances are created by Store.Join.
type Instance struct {
	id     string
	kind   string
	peer   string
	life   relation.Life
	local  map[string]string
	remote map[string]string
}

// ID returns the instance identifier, unique within the unit.
func (i *Instance) ID() string { return i.id }

// Kind returns the relation kind of the instance.
func (i *Instance) Kind() string { return i.kind }

// Peer returns the identity of the connected peer application.
func (i *Instance) Peer() string { return i.peer }

// Life returns the lifecycle state of the instance.
func (i *Instance) Life() relation.Life { return i.life }

// RemoteFields returns a copy of the peer's last-observed fields.
func (i *Instance) RemoteFields() map[string]string {
	return copyFields(i.remote)
}

// LocalFields returns a copy of this unit's published fields.
func (i *Instance) LocalFields() map[string]string {
	return copyFields(i.local)
}

// Store holds relation data for every current instance. It is owned by
// the reconciliation loop and must only be used from that goroutine;
// concurrent use exhibits undefined behaviour.
type Store struct {
	writer    PeerWriter
	instances map[string]*Instance
}

// NewStore returns an empty Store which publishes outgoing fields
// through the supplied writer.
func NewStore(writer PeerWriter) *Store {
	return &Store{
		writer:    writer,
		instances: make(map[string]*Instance),
	}
}

// Join records that a peer has joined the given relation instance.
// Joining an instance that is already present is a no-op, so replayed
// events converge to the same state.
func (st *Store) Join(kind, id, peer string) error {
	if existing, ok := st.instances[id]; ok {
		if existing.kind != kind {
			return errors.NotValidf("relation instance %q joined as %q, already held as %q", id, kind, existing.kind)
		}
		logger.Debugf("relation %q instance %q already joined", kind, id)
		return nil
	}
	st.instances[id] = &Instance{
		id:     id,
		kind:   kind,
		peer:   peer,
		life:   relation.Joined,
		local:  map[string]string{},
		remote: map[string]string{},
	}
	logger.Debugf("relation %q instance %q joined by %q", kind, id, peer)
	return nil
}

// SetRemote overwrites the last-observed peer fields for the given
// instance. Updates for instances that have already departed are
// discarded: a departure strictly dominates any change that arrives
// after it.
func (st *Store) SetRemote(kind, id string, fields map[string]string) error {
	inst, err := st.lookup(kind, id)
	if errors.IsNotFound(err) {
		logger.Warningf("dropping change for departed or unknown relation %q instance %q", kind, id)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	inst.remote = copyFields(fields)
	return nil
}

// Remove discards all state held for the given instance, irreversibly.
// Removing an absent instance is a no-op.
func (st *Store) Remove(kind, id string) error {
	inst, err := st.lookup(kind, id)
	if errors.IsNotFound(err) {
		logger.Debugf("relation %q instance %q already removed", kind, id)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	inst.life = relation.Departed
	delete(st.instances, id)
	logger.Debugf("relation %q instance %q departed; cached peer fields discarded", kind, id)
	return nil
}

// Observe returns the most recently received peer fields for the given
// instance, or false if the instance is not currently joined. It never
// blocks.
func (st *Store) Observe(kind, id string) (map[string]string, bool) {
	inst, err := st.lookup(kind, id)
	if err != nil {
		return nil, false
	}
	return inst.RemoteFields(), true
}

// Publish overwrites this unit's local fields for the given instance
// and forwards them to the peer. Publishing fields identical to those
// already held is a no-op with no external side effect.
func (st *Store) Publish(kind, id string, fields map[string]string) error {
	inst, err := st.lookup(kind, id)
	if err != nil {
		return errors.Trace(err)
	}
	if fieldsEqual(inst.local, fields) {
		return nil
	}
	if st.writer != nil {
		if err := st.writer.WriteFields(kind, id, copyFields(fields)); err != nil {
			return errors.Annotatef(err, "publishing fields on relation %q instance %q", kind, id)
		}
	}
	inst.local = copyFields(fields)
	logger.Debugf("published %d field(s) on relation %q instance %q", len(fields), kind, id)
	return nil
}

// Joined returns the currently joined instances of the given kind,
// ordered by instance id.
func (st *Store) Joined(kind string) []*Instance {
	var result []*Instance
	for _, inst := range st.instances {
		if inst.kind == kind && inst.life == relation.Joined {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

func (st *Store) lookup(kind, id string) (*Instance, error) {
	inst, ok := st.instances[id]
	if !ok {
		return nil, errors.NotFoundf("relation %q instance %q", kind, id)
	}
	if inst.kind != kind {
		return nil, errors.NotValidf("relation instance %q requested as %q, held as %q", id, kind, inst.kind)
	}
	return inst, nil
}

func copyFields(fields map[string]string) map[string]string {
	result := make(map[string]string, len(fields))
	for k, v := range fields {
		result[k] = v
	}
	return result
}

func fieldsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
