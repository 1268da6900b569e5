// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reconciler drives the unit towards the state implied by its
// inputs. Events are queued and handled strictly one at a time; every
// pass recomputes the configuration snapshot from scratch, applies the
// workload artifacts when the snapshot is complete, publishes outgoing
// relation data and reports the derived unit status.
package reconciler

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/aznashwan/legend-studio-operator/core/config"
	"github.com/aznashwan/legend-studio-operator/core/status"
	"github.com/aznashwan/legend-studio-operator/internal/readiness"
	"github.com/aznashwan/legend-studio-operator/internal/relationstore"
	"github.com/aznashwan/legend-studio-operator/internal/renderer"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

var logger = loggo.GetLogger("legend.studio.reconciler")

const (
	defaultUpdateStatusInterval = 5 * time.Minute
	defaultQueueSize            = 64
)

// Applier applies a rendered artifact to the workload.
type Applier interface {
	Apply(*renderer.Artifact) (bool, error)
	LastApplied() string
}

// WorkloadChecker reports whether the workload container resource is
// reachable.
type WorkloadChecker interface {
	Ready() error
}

// StatusSink receives the derived unit status.
type StatusSink interface {
	Publish(status.StatusInfo) error
}

// ReconcilerConfig holds the dependencies and behaviour of a
// Reconciler.
type ReconcilerConfig struct {
	// Store holds relation instance state. The reconciler owns it; no
	// other goroutine may touch it once the worker is started.
	Store *relationstore.Store

	// Resolver computes snapshots from the store and static config.
	Resolver *resolver.Resolver

	// Applier pushes rendered artifacts into the workload.
	Applier Applier

	// Workload answers whether the container resource is present.
	Workload WorkloadChecker

	// Status receives the unit status derived by each pass.
	Status StatusSink

	// CoerceConfig turns the raw attributes of a config-changed event
	// into typed configuration.
	CoerceConfig func(map[string]interface{}) (config.ConfigAttributes, error)

	// BuildArtifact renders workload artifacts from a complete
	// snapshot.
	BuildArtifact func(resolver.Snapshot) (*renderer.Artifact, error)

	// OutgoingFields derives the local fields to publish on relations
	// of the given kind, or false when there is nothing to publish.
	OutgoingFields func(kind string, snap resolver.Snapshot, unitAddress string) (map[string]string, bool)

	// UnitAddress returns the unit's own network address, possibly
	// empty when none has been assigned yet.
	UnitAddress func() string

	Clock clock.Clock

	// UpdateStatusInterval is the period of the self-scheduled
	// update-status pass. Zero selects the default of five minutes.
	UpdateStatusInterval time.Duration

	// QueueSize bounds the pending event queue. Zero selects the
	// default of 64.
	QueueSize int
}

// Validate returns an error if the config cannot drive a Reconciler.
func (c ReconcilerConfig) Validate() error {
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.Resolver == nil {
		return errors.NotValidf("nil Resolver")
	}
	if c.Applier == nil {
		return errors.NotValidf("nil Applier")
	}
	if c.Workload == nil {
		return errors.NotValidf("nil Workload")
	}
	if c.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if c.CoerceConfig == nil {
		return errors.NotValidf("nil CoerceConfig")
	}
	if c.BuildArtifact == nil {
		return errors.NotValidf("nil BuildArtifact")
	}
	if c.OutgoingFields == nil {
		return errors.NotValidf("nil OutgoingFields")
	}
	if c.UnitAddress == nil {
		return errors.NotValidf("nil UnitAddress")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Reconciler is a worker serializing all unit state transitions.
type Reconciler struct {
	catacomb catacomb.Catacomb
	config   ReconcilerConfig
	events   chan Event

	// attrs is the last coerced static configuration. Only the loop
	// goroutine touches it.
	attrs config.ConfigAttributes

	// configBroken notes that the last config-changed payload failed
	// coercion, so passes report it rather than resolving stale attrs.
	configBroken error
}

// NewReconciler starts a reconciliation worker.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.UpdateStatusInterval <= 0 {
		cfg.UpdateStatusInterval = defaultUpdateStatusInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	r := &Reconciler{
		config: cfg,
		events: make(chan Event, cfg.QueueSize),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &r.catacomb,
		Work: r.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

// Kill is part of the worker.Worker interface.
func (r *Reconciler) Kill() {
	r.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (r *Reconciler) Wait() error {
	return r.catacomb.Wait()
}

// Enqueue submits an event for handling. It returns without waiting
// for the event to be handled. Events are handled strictly in the
// order they were accepted.
func (r *Reconciler) Enqueue(event Event) error {
	if err := event.Validate(); err != nil {
		return errors.Trace(err)
	}
	select {
	case r.events <- event:
		return nil
	case <-r.catacomb.Dying():
		return errors.New("reconciler is stopping")
	}
}

func (r *Reconciler) loop() error {
	timer := r.config.Clock.NewTimer(r.config.UpdateStatusInterval)
	defer timer.Stop()
	for {
		select {
		case <-r.catacomb.Dying():
			return r.catacomb.ErrDying()
		case event := <-r.events:
			logger.Debugf("handling %s", event)
			if err := r.handle(event); err != nil {
				return errors.Trace(err)
			}
		case <-timer.Chan():
			timer.Reset(r.config.UpdateStatusInterval)
			logger.Debugf("periodic update-status pass")
			if err := r.reconcile(); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

// handle folds the event into local state and runs a pass. Only
// programming errors and unusable dependencies are returned; problems
// with the unit's inputs surface as status, not as worker death.
func (r *Reconciler) handle(event Event) error {
	switch event.Kind {
	case RelationJoined:
		if err := r.config.Store.Join(event.RelationKind, event.RelationID, event.Peer); err != nil {
			return errors.Trace(err)
		}
		if len(event.RemoteFields) > 0 {
			if err := r.config.Store.SetRemote(event.RelationKind, event.RelationID, event.RemoteFields); err != nil {
				return errors.Trace(err)
			}
		}
	case RelationChanged:
		if err := r.config.Store.SetRemote(event.RelationKind, event.RelationID, event.RemoteFields); err != nil {
			return errors.Trace(err)
		}
	case RelationDeparted:
		if err := r.config.Store.Remove(event.RelationKind, event.RelationID); err != nil {
			return errors.Trace(err)
		}
	case ConfigChanged:
		attrs, err := r.config.CoerceConfig(event.Config)
		if err != nil {
			logger.Errorf("rejecting configuration: %v", err)
			r.configBroken = err
		} else {
			r.attrs = attrs
			r.configBroken = nil
		}
	case ResourceChanged, UpdateStatus:
		// Nothing to fold in; the pass re-checks the environment.
	}
	return r.reconcile()
}

// reconcile runs one full pass: resolve, evaluate, apply, publish.
func (r *Reconciler) reconcile() error {
	if r.configBroken != nil {
		r.report(status.StatusInfo{
			Status:  status.Error,
			Message: "invalid configuration: " + r.configBroken.Error(),
		})
		return nil
	}

	snapshot, problems := r.config.Resolver.Resolve(r.attrs, r.config.Store)

	env := readiness.Environment{}
	if err := r.config.Workload.Ready(); err != nil {
		logger.Debugf("workload container not ready: %v", err)
	} else {
		env.ResourcePresent = true
	}

	info := readiness.Evaluate(problems, env)
	if info.Status == status.Active {
		env.ApplyError = r.apply(snapshot)
		if env.ApplyError != nil {
			info = readiness.Evaluate(problems, env)
		}
	}

	r.publishOutgoing(snapshot)
	r.report(info)
	return nil
}

// apply renders the snapshot's artifacts and pushes them into the
// workload, restarting the service when the content changed.
func (r *Reconciler) apply(snapshot resolver.Snapshot) error {
	artifact, err := r.config.BuildArtifact(snapshot)
	if err != nil {
		return errors.Trace(err)
	}
	if artifact.Hash() != r.config.Applier.LastApplied() {
		r.report(status.StatusInfo{
			Status:  status.Maintenance,
			Message: "applying workload configuration",
		})
	}
	restarted, err := r.config.Applier.Apply(artifact)
	if err != nil {
		return errors.Trace(err)
	}
	if restarted {
		logger.Infof("workload restarted with new configuration")
	}
	return nil
}

// publishOutgoing refreshes this unit's fields on every joined
// relation instance. Failures are logged and retried on the next pass
// since the store only records successfully written fields.
func (r *Reconciler) publishOutgoing(snapshot resolver.Snapshot) {
	address := r.config.UnitAddress()
	for _, decl := range r.config.Resolver.Declarations() {
		fields, ok := r.config.OutgoingFields(decl.Kind, snapshot, address)
		if !ok {
			continue
		}
		for _, inst := range r.config.Store.Joined(decl.Kind) {
			if err := r.config.Store.Publish(decl.Kind, inst.ID(), fields); err != nil {
				logger.Errorf("cannot publish fields on relation %q instance %q: %v", decl.Kind, inst.ID(), err)
			}
		}
	}
}

func (r *Reconciler) report(info status.StatusInfo) {
	if info.Since == nil {
		now := r.config.Clock.Now()
		info.Since = &now
	}
	if err := r.config.Status.Publish(info); err != nil {
		logger.Errorf("cannot report unit status %q: %v", info.Status, err)
	}
}
