// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package renderer turns a complete configuration snapshot into the
// concrete artifact the workload consumes, and applies it to the
// running workload. An artifact is a deterministic function of the
// snapshot: rendering an unchanged snapshot yields byte-identical
// content, and the workload is only restarted when the content differs
// from what was last applied.
package renderer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// File is one configuration file pushed into the workload container.
type File struct {
	Path    string
	Content []byte
}

// Artifact is the full configuration handed to the workload: the
// service definition layer plus the configuration files it reads.
type Artifact struct {
	// ServiceName is the workload service to restart once the new
	// configuration is in place.
	ServiceName string

	// LayerLabel and LayerYAML define the service in the container's
	// supervisor, ensured before every restart.
	LayerLabel string
	LayerYAML  string

	// Files are the configuration files, ordered by path.
	Files []File
}

// Validate returns an error if the artifact is malformed.
func (a *Artifact) Validate() error {
	if a.ServiceName == "" {
		return errors.NotValidf("artifact with empty service name")
	}
	paths := set.NewStrings()
	for _, f := range a.Files {
		if f.Path == "" {
			return errors.NotValidf("artifact file with empty path")
		}
		if paths.Contains(f.Path) {
			return errors.NotValidf("artifact with duplicate file %q", f.Path)
		}
		paths.Add(f.Path)
	}
	if !sort.SliceIsSorted(a.Files, func(i, j int) bool {
		return a.Files[i].Path < a.Files[j].Path
	}) {
		return errors.NotValidf("artifact files not ordered by path")
	}
	return nil
}

// Hash returns a digest of the artifact's entire content. Two
// artifacts hash equal exactly when applying them would leave the
// workload in the same state.
func (a *Artifact) Hash() string {
	h := sha256.New()
	writeField := func(value []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(value)))
		h.Write(length[:])
		h.Write(value)
	}
	writeField([]byte(a.ServiceName))
	writeField([]byte(a.LayerLabel))
	writeField([]byte(a.LayerYAML))
	for _, f := range a.Files {
		writeField([]byte(f.Path))
		writeField(f.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
