// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package events bridges the agent's notification hub into the
// reconciler's event queue. Sources inside the agent (hook dispatch,
// the container watcher, config refreshers) publish structured
// payloads on well-known topics; the dispatcher translates them into
// reconciler events.
package events

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/aznashwan/legend-studio-operator/internal/reconciler"
)

var logger = loggo.GetLogger("legend.studio.events")

// Topics the dispatcher subscribes to.
const (
	RelationJoinedTopic   = "relation.joined"
	RelationChangedTopic  = "relation.changed"
	RelationDepartedTopic = "relation.departed"
	ConfigChangedTopic    = "config.changed"
	ResourceChangedTopic  = "resource.changed"
)

// RelationPayload is published on the relation.* topics.
type RelationPayload struct {
	Kind   string
	ID     string
	Peer   string
	Fields map[string]string
}

// ConfigPayload is published on the config.changed topic and carries
// the full raw static configuration.
type ConfigPayload struct {
	Attributes map[string]interface{}
}

// Enqueuer accepts reconciler events.
type Enqueuer interface {
	Enqueue(reconciler.Event) error
}

// NewHub returns a hub suitable for the agent's internal notifications.
func NewHub() *pubsub.SimpleHub {
	return pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("legend.studio.hub"),
	})
}

// Dispatcher forwards hub notifications to an Enqueuer.
type Dispatcher struct {
	target Enqueuer
	unsubs []func()
}

// NewDispatcher subscribes to every event topic on hub and forwards
// the notifications to target.
func NewDispatcher(hub *pubsub.SimpleHub, target Enqueuer) (*Dispatcher, error) {
	if hub == nil {
		return nil, errors.NotValidf("nil hub")
	}
	if target == nil {
		return nil, errors.NotValidf("nil target")
	}
	d := &Dispatcher{target: target}
	d.unsubs = []func(){
		hub.Subscribe(RelationJoinedTopic, d.onRelation(reconciler.RelationJoined)),
		hub.Subscribe(RelationChangedTopic, d.onRelation(reconciler.RelationChanged)),
		hub.Subscribe(RelationDepartedTopic, d.onRelation(reconciler.RelationDeparted)),
		hub.Subscribe(ConfigChangedTopic, d.onConfig),
		hub.Subscribe(ResourceChangedTopic, d.onResource),
	}
	return d, nil
}

// Close unsubscribes from all topics. Notifications already in flight
// may still be forwarded.
func (d *Dispatcher) Close() {
	for _, unsub := range d.unsubs {
		unsub()
	}
}

func (d *Dispatcher) onRelation(kind reconciler.Kind) func(string, interface{}) {
	return func(topic string, data interface{}) {
		payload, ok := data.(RelationPayload)
		if !ok {
			logger.Errorf("discarding %q notification with payload of type %T", topic, data)
			return
		}
		d.forward(reconciler.Event{
			Kind:         kind,
			RelationKind: payload.Kind,
			RelationID:   payload.ID,
			Peer:         payload.Peer,
			RemoteFields: payload.Fields,
		})
	}
}

func (d *Dispatcher) onConfig(topic string, data interface{}) {
	payload, ok := data.(ConfigPayload)
	if !ok {
		logger.Errorf("discarding %q notification with payload of type %T", topic, data)
		return
	}
	d.forward(reconciler.Event{
		Kind:   reconciler.ConfigChanged,
		Config: payload.Attributes,
	})
}

func (d *Dispatcher) onResource(topic string, data interface{}) {
	d.forward(reconciler.Event{Kind: reconciler.ResourceChanged})
}

func (d *Dispatcher) forward(event reconciler.Event) {
	if err := d.target.Enqueue(event); err != nil {
		logger.Errorf("cannot enqueue %s: %v", event, err)
	}
}
