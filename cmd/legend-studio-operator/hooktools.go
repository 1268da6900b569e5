// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/aznashwan/legend-studio-operator/core/status"
)

// hookToolRunner reports unit state to the orchestrator by shelling
// out to its hook tools. When dir is empty the tools are resolved
// through PATH.
type hookToolRunner struct {
	dir string
}

func newHookToolRunner(dir string) *hookToolRunner {
	return &hookToolRunner{dir: dir}
}

// SetUnitStatus implements statuspublisher.Backend.
func (r *hookToolRunner) SetUnitStatus(st status.Status, message string) error {
	args := []string{string(st)}
	if message != "" {
		args = append(args, message)
	}
	return r.run("status-set", args...)
}

// WriteFields implements relationstore.PeerWriter. Fields are passed
// in sorted order so repeated publications produce identical commands.
func (r *hookToolRunner) WriteFields(kind, id string, fields map[string]string) error {
	args := []string{"-r", id}
	keys := set.NewStrings()
	for key := range fields {
		keys.Add(key)
	}
	for _, key := range keys.SortedValues() {
		args = append(args, key+"="+fields[key])
	}
	return r.run("relation-set", args...)
}

func (r *hookToolRunner) run(tool string, args ...string) error {
	path := tool
	if r.dir != "" {
		path = filepath.Join(r.dir, tool)
	}
	out, err := exec.Command(path, args...).CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "%s: %s", tool, strings.TrimSpace(string(out)))
	}
	return nil
}
