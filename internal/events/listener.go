// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package events

import (
	"encoding/json"
	"io"
	"net"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"
)

// wireEvent is the envelope accepted on the agent's event socket, one
// JSON document per line. Hook processes are short-lived; they connect,
// write their notification and exit.
type wireEvent struct {
	Topic  string                 `json:"topic"`
	Kind   string                 `json:"kind,omitempty"`
	ID     string                 `json:"id,omitempty"`
	Peer   string                 `json:"peer,omitempty"`
	Fields map[string]string      `json:"fields,omitempty"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// ListenerConfig holds the dependencies of a Listener.
type ListenerConfig struct {
	// SocketPath is the unix socket the listener serves on.
	SocketPath string

	// Hub receives the decoded notifications.
	Hub *pubsub.SimpleHub
}

// Validate returns an error if the config cannot drive a Listener.
func (c ListenerConfig) Validate() error {
	if c.SocketPath == "" {
		return errors.NotValidf("empty SocketPath")
	}
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	return nil
}

// Listener is a worker serving the agent's event socket. Each accepted
// connection streams newline-delimited JSON events which are published
// on the hub.
type Listener struct {
	catacomb catacomb.Catacomb
	config   ListenerConfig
	listener net.Listener
}

// NewListener starts serving on the configured socket.
func NewListener(config ListenerConfig) (*Listener, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	listener, err := net.Listen("unix", config.SocketPath)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %q", config.SocketPath)
	}
	l := &Listener{
		config:   config,
		listener: listener,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &l.catacomb,
		Work: l.loop,
	}); err != nil {
		_ = listener.Close()
		return nil, errors.Trace(err)
	}
	return l, nil
}

// Kill is part of the worker.Worker interface.
func (l *Listener) Kill() {
	l.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (l *Listener) Wait() error {
	return l.catacomb.Wait()
}

func (l *Listener) loop() error {
	// Accept blocks, so unblock it by closing the socket on death.
	go func() {
		<-l.catacomb.Dying()
		_ = l.listener.Close()
	}()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.catacomb.Dying():
				return l.catacomb.ErrDying()
			default:
				return errors.Annotate(err, "accepting event connection")
			}
		}
		go l.serve(conn)
	}
}

func (l *Listener) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	decoder := json.NewDecoder(conn)
	for {
		var event wireEvent
		if err := decoder.Decode(&event); err != nil {
			if err != io.EOF {
				logger.Errorf("malformed event on socket: %v", err)
			}
			return
		}
		l.publish(event)
	}
}

func (l *Listener) publish(event wireEvent) {
	switch event.Topic {
	case RelationJoinedTopic, RelationChangedTopic, RelationDepartedTopic:
		l.config.Hub.Publish(event.Topic, RelationPayload{
			Kind:   event.Kind,
			ID:     event.ID,
			Peer:   event.Peer,
			Fields: event.Fields,
		})
	case ConfigChangedTopic:
		l.config.Hub.Publish(event.Topic, ConfigPayload{
			Attributes: event.Config,
		})
	case ResourceChangedTopic:
		l.config.Hub.Publish(event.Topic, nil)
	default:
		logger.Warningf("discarding event with unknown topic %q", event.Topic)
	}
}
