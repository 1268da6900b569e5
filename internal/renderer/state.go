// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package renderer

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// State records the most recently applied artifact, so an operator
// restart does not trigger a redundant workload restart.
type State struct {
	// ArtifactHash is the digest of the last successfully applied
	// artifact.
	ArtifactHash string `yaml:"artifact-hash"`

	// AppliedAt is the apply time in Unix seconds. Recorded as int64
	// because the yaml encoder cannot encode the time.Time struct.
	AppliedAt int64 `yaml:"applied-at,omitempty"`
}

func (st State) validate() error {
	if st.ArtifactHash == "" {
		return errors.NotValidf("applied artifact state with empty hash")
	}
	return nil
}

// ErrNoStateFile is returned by Read when no artifact has been applied
// yet.
var ErrNoStateFile = errors.New("applied artifact state file does not exist")

// StateFile holds the on-disk record of the last applied artifact.
type StateFile struct {
	path string
}

// NewStateFile returns a new StateFile using path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path}
}

// Read reads the State from the file. If the file does not exist it
// returns ErrNoStateFile.
func (f *StateFile) Read() (*State, error) {
	var st State
	if err := utils.ReadYaml(f.path, &st); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, ErrNoStateFile
		}
		return nil, errors.Annotatef(err, "cannot read applied artifact state at %q", f.path)
	}
	if err := st.validate(); err != nil {
		return nil, errors.Annotatef(err, "cannot read applied artifact state at %q", f.path)
	}
	return &st, nil
}

// Write atomically stores the supplied state to the file.
func (f *StateFile) Write(hash string, appliedAt time.Time) error {
	st := State{
		ArtifactHash: hash,
		AppliedAt:    appliedAt.Unix(),
	}
	if err := st.validate(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(utils.WriteYaml(f.path, st))
}
