// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package renderer

import (
	"bytes"
	"time"

	"github.com/canonical/pebble/client"
	"github.com/juju/errors"
)

// PebbleClient implements WorkloadClient against the Pebble daemon
// supervising the workload container.
type PebbleClient struct {
	client *client.Client
}

// NewPebbleClient returns a WorkloadClient talking to the Pebble socket
// at the given path.
func NewPebbleClient(socketPath string) (*PebbleClient, error) {
	pc, err := client.New(&client.Config{Socket: socketPath})
	if err != nil {
		return nil, errors.Annotatef(err, "connecting to pebble at %q", socketPath)
	}
	return &PebbleClient{client: pc}, nil
}

// Ready implements WorkloadClient. The container resource is present
// exactly when the Pebble daemon inside it answers.
func (c *PebbleClient) Ready() error {
	if _, err := c.client.SysInfo(); err != nil {
		return errors.Annotate(err, "workload container is not reachable")
	}
	return nil
}

// Push implements WorkloadClient.
func (c *PebbleClient) Push(path string, content []byte) error {
	err := c.client.Push(&client.PushOptions{
		Source:   bytes.NewReader(content),
		Path:     path,
		MakeDirs: true,
	})
	return errors.Trace(err)
}

// EnsureLayer implements WorkloadClient.
func (c *PebbleClient) EnsureLayer(label, layerYAML string) error {
	err := c.client.AddLayer(&client.AddLayerOptions{
		Combine:   true,
		Label:     label,
		LayerData: []byte(layerYAML),
	})
	return errors.Trace(err)
}

// Restart implements WorkloadClient. Restarting a stopped service
// starts it.
func (c *PebbleClient) Restart(service string, timeout time.Duration) error {
	changeID, err := c.client.Restart(&client.ServiceOptions{
		Names: []string{service},
	})
	if err != nil {
		return errors.Trace(err)
	}
	change, err := c.client.WaitChange(changeID, &client.WaitChangeOptions{
		Timeout: timeout,
	})
	if err != nil {
		return errors.Annotatef(err, "waiting for %q to restart", service)
	}
	if change.Err != "" {
		return errors.Errorf("restarting %q: %s", service, change.Err)
	}
	return nil
}
