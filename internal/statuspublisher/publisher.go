// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package statuspublisher reports the unit's derived status to the
// orchestrator. Repeated reports of an identical status are coalesced
// to avoid needless API calls, but the latest status of an event burst
// is always forwarded.
package statuspublisher

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/aznashwan/legend-studio-operator/core/status"
)

var logger = loggo.GetLogger("legend.studio.status")

// Backend forwards a unit status to the orchestrator.
type Backend interface {
	SetUnitStatus(status.Status, string) error
}

// Publisher is a latest-wins status sink. Publish is synchronous, so
// whichever status is reported last is the one the orchestrator holds.
type Publisher struct {
	backend Backend

	// Cache the last reported status information so we don't make
	// unnecessary calls to the orchestrator.
	mu                  sync.Mutex
	lastReportedStatus  status.Status
	lastReportedMessage string
}

// NewPublisher returns a Publisher reporting through backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend}
}

// Publish forwards info to the orchestrator unless it is identical to
// the previously reported status.
func (p *Publisher) Publish(info status.StatusInfo) error {
	if err := info.Validate(); err != nil {
		return errors.Trace(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if info.Status == p.lastReportedStatus && info.Message == p.lastReportedMessage {
		logger.Tracef("suppressing duplicate status %q: %s", info.Status, info.Message)
		return nil
	}
	if err := p.backend.SetUnitStatus(info.Status, info.Message); err != nil {
		return errors.Annotate(err, "reporting unit status")
	}
	p.lastReportedStatus = info.Status
	p.lastReportedMessage = info.Message
	logger.Infof("unit status set to %q: %s", info.Status, info.Message)
	return nil
}
