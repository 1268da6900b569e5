// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package renderer

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("legend.studio.renderer")

const (
	defaultRestartTimeout  = 30 * time.Second
	defaultRestartAttempts = 3
	defaultRestartDelay    = 3 * time.Second
)

// WorkloadClient manipulates the workload container: pushing files,
// ensuring the service layer and restarting the service. The concrete
// implementation talks to Pebble inside the container.
type WorkloadClient interface {
	// Ready returns nil when the container can be configured.
	Ready() error

	// Push writes content to path inside the container, creating
	// missing directories.
	Push(path string, content []byte) error

	// EnsureLayer adds or refreshes the labelled service layer.
	EnsureLayer(label, layerYAML string) error

	// Restart restarts the named service, waiting at most timeout for
	// it to come up.
	Restart(service string, timeout time.Duration) error
}

// ApplierConfig holds the dependencies of an Applier.
type ApplierConfig struct {
	Client WorkloadClient

	// StateFilePath locates the record of the last applied artifact.
	StateFilePath string

	Clock clock.Clock

	// RestartTimeout bounds how long one restart attempt may take
	// before the pass is failed rather than left hanging.
	RestartTimeout time.Duration

	// RestartAttempts and RestartDelay govern in-pass restart retries.
	RestartAttempts int
	RestartDelay    time.Duration
}

// Validate ensures that the required values are set in the structure.
func (c *ApplierConfig) Validate() error {
	if c.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if c.StateFilePath == "" {
		return errors.NotValidf("empty StateFilePath")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Applier pushes rendered artifacts into the workload container. It
// caches the hash of the last applied artifact so re-applying an
// unchanged artifact never restarts the workload.
type Applier struct {
	config    ApplierConfig
	stateFile *StateFile
	lastHash  string
}

// NewApplier returns an Applier primed with any previously recorded
// applied-artifact state.
func NewApplier(config ApplierConfig) (*Applier, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.RestartTimeout <= 0 {
		config.RestartTimeout = defaultRestartTimeout
	}
	if config.RestartAttempts <= 0 {
		config.RestartAttempts = defaultRestartAttempts
	}
	if config.RestartDelay <= 0 {
		config.RestartDelay = defaultRestartDelay
	}
	a := &Applier{
		config:    config,
		stateFile: NewStateFile(config.StateFilePath),
	}
	st, err := a.stateFile.Read()
	if err == ErrNoStateFile {
		return a, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	a.lastHash = st.ArtifactHash
	return a, nil
}

// Apply makes artifact the workload's live configuration. It returns
// whether the workload was restarted.
//
// Applying is atomic from the workload's point of view: the service
// only consumes its configuration on restart, so the previously applied
// configuration keeps serving until a restart succeeds. If any step
// fails the applied-artifact record is left untouched and the next
// reconciliation pass retries the whole apply.
func (a *Applier) Apply(artifact *Artifact) (bool, error) {
	if err := artifact.Validate(); err != nil {
		return false, errors.Trace(err)
	}
	hash := artifact.Hash()
	if hash == a.lastHash {
		logger.Debugf("artifact %s already applied; not restarting %q", shortHash(hash), artifact.ServiceName)
		return false, nil
	}
	if err := a.config.Client.EnsureLayer(artifact.LayerLabel, artifact.LayerYAML); err != nil {
		return false, errors.Annotate(err, "ensuring service layer")
	}
	for _, f := range artifact.Files {
		if err := a.config.Client.Push(f.Path, f.Content); err != nil {
			return false, errors.Annotatef(err, "pushing %q into workload container", f.Path)
		}
	}
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return a.config.Client.Restart(artifact.ServiceName, a.config.RestartTimeout)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("restart of %q failed (attempt %d): %v", artifact.ServiceName, attempt, err)
		},
		Attempts: a.config.RestartAttempts,
		Delay:    a.config.RestartDelay,
		Clock:    a.config.Clock,
	})
	if err != nil {
		return false, errors.Annotatef(err, "restarting service %q", artifact.ServiceName)
	}
	if err := a.stateFile.Write(hash, a.config.Clock.Now()); err != nil {
		return false, errors.Annotate(err, "recording applied artifact")
	}
	a.lastHash = hash
	logger.Infof("applied artifact %s and restarted service %q", shortHash(hash), artifact.ServiceName)
	return true, nil
}

// LastApplied returns the hash of the last successfully applied
// artifact, or the empty string.
func (a *Applier) LastApplied() string {
	return a.lastHash
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
