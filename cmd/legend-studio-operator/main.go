// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command legend-studio-operator runs the unit agent managing a FINOS
// Legend Studio workload container. The agent listens for relation,
// config and resource notifications on a unix socket, reconciles the
// workload's configuration and reports the unit status through the
// orchestrator's hook tools.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"github.com/juju/utils/v4"
	"github.com/juju/worker/v4"

	"github.com/aznashwan/legend-studio-operator/core/config"
	"github.com/aznashwan/legend-studio-operator/internal/events"
	"github.com/aznashwan/legend-studio-operator/internal/legend"
	"github.com/aznashwan/legend-studio-operator/internal/reconciler"
	"github.com/aznashwan/legend-studio-operator/internal/relationstore"
	"github.com/aznashwan/legend-studio-operator/internal/renderer"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
	"github.com/aznashwan/legend-studio-operator/internal/statuspublisher"
)

var logger = loggo.GetLogger("legend.studio.cmd")

type agentArgs struct {
	unitName             string
	unitAddress          string
	stateDir             string
	pebbleSocket         string
	eventSocket          string
	configFile           string
	hookToolsDir         string
	loggingConfig        string
	updateStatusInterval time.Duration
}

func registerFlags(f *gnuflag.FlagSet, args *agentArgs) {
	f.StringVar(&args.unitName, "unit-name", "", "name of the unit this agent runs for, e.g. legend-studio/0")
	f.StringVar(&args.unitAddress, "unit-address", "", "network address of this unit")
	f.StringVar(&args.stateDir, "state-dir", "/var/lib/legend-studio-operator", "directory holding the agent's state")
	f.StringVar(&args.pebbleSocket, "pebble-socket", "/charm/containers/studio/pebble.socket", "pebble socket of the workload container")
	f.StringVar(&args.eventSocket, "event-socket", "", "unix socket to receive events on (default <state-dir>/events.socket)")
	f.StringVar(&args.configFile, "config-file", "", "YAML file with the unit's static configuration")
	f.StringVar(&args.hookToolsDir, "hook-tools-dir", "", "directory holding the orchestrator's hook tools (default PATH)")
	f.StringVar(&args.loggingConfig, "logging-config", "<root>=INFO", "initial logging configuration")
	f.DurationVar(&args.updateStatusInterval, "update-status-interval", 5*time.Minute, "period of the self-scheduled status refresh")
}

func main() {
	os.Exit(Main(os.Args))
}

// Main parses the command line and runs the agent until it is
// signalled to stop or a worker fails.
func Main(argv []string) int {
	var args agentArgs
	flags := gnuflag.NewFlagSet(argv[0], gnuflag.ContinueOnError)
	registerFlags(flags, &args)
	if err := flags.Parse(true, argv[1:]); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := runAgent(args); err != nil {
		logger.Criticalf("agent failed: %v", err)
		return 1
	}
	return 0
}

func runAgent(args agentArgs) error {
	if err := loggo.ConfigureLoggers(args.loggingConfig); err != nil {
		return errors.Annotate(err, "configuring loggers")
	}
	if !names.IsValidUnit(args.unitName) {
		return errors.NotValidf("unit name %q", args.unitName)
	}
	tag := names.NewUnitTag(args.unitName)
	if args.eventSocket == "" {
		args.eventSocket = filepath.Join(args.stateDir, "events.socket")
	}
	if err := os.MkdirAll(args.stateDir, 0700); err != nil {
		return errors.Annotate(err, "creating state directory")
	}

	tools := newHookToolRunner(args.hookToolsDir)
	store := relationstore.NewStore(tools)

	res, err := resolver.New(resolver.Config{
		Declarations:     legend.Declarations(),
		ValidateStatic:   legend.ValidateStatic,
		ValidateInstance: legend.ValidateInstance,
	})
	if err != nil {
		return errors.Trace(err)
	}

	pebble, err := renderer.NewPebbleClient(args.pebbleSocket)
	if err != nil {
		return errors.Trace(err)
	}
	applier, err := renderer.NewApplier(renderer.ApplierConfig{
		Client:        pebble,
		StateFilePath: filepath.Join(args.stateDir, "applied-artifact.yaml"),
		Clock:         clock.WallClock,
	})
	if err != nil {
		return errors.Trace(err)
	}

	rec, err := reconciler.NewReconciler(reconciler.ReconcilerConfig{
		Store:    store,
		Resolver: res,
		Applier:  applier,
		Workload: pebble,
		Status:   statuspublisher.NewPublisher(tools),
		CoerceConfig: func(raw map[string]interface{}) (config.ConfigAttributes, error) {
			cfg, err := legend.NewStaticConfig(raw)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return cfg.Attributes(), nil
		},
		BuildArtifact:        legend.BuildArtifact,
		OutgoingFields:       legend.OutgoingFields,
		UnitAddress:          func() string { return args.unitAddress },
		Clock:                clock.WallClock,
		UpdateStatusInterval: args.updateStatusInterval,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = worker.Stop(rec) }()

	hub := events.NewHub()
	dispatcher, err := events.NewDispatcher(hub, rec)
	if err != nil {
		return errors.Trace(err)
	}
	defer dispatcher.Close()

	listener, err := events.NewListener(events.ListenerConfig{
		SocketPath: args.eventSocket,
		Hub:        hub,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = worker.Stop(listener) }()

	if err := seedInitialEvents(rec, args.configFile); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("agent for %s started; events on %q", tag, args.eventSocket)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	failures := make(chan error, 2)
	go func() { failures <- rec.Wait() }()
	go func() { failures <- listener.Wait() }()

	select {
	case sig := <-signals:
		logger.Infof("received %v, shutting down", sig)
		return nil
	case err := <-failures:
		return errors.Annotate(err, "agent worker failed")
	}
}

// seedInitialEvents primes the reconciler so the unit reports a status
// before the first external notification arrives.
func seedInitialEvents(rec *reconciler.Reconciler, configFile string) error {
	if configFile != "" {
		var raw map[string]interface{}
		if err := utils.ReadYaml(configFile, &raw); err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				return errors.Annotatef(err, "reading configuration from %q", configFile)
			}
			logger.Warningf("configuration file %q does not exist yet", configFile)
		} else {
			if err := rec.Enqueue(reconciler.Event{
				Kind:   reconciler.ConfigChanged,
				Config: raw,
			}); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return errors.Trace(rec.Enqueue(reconciler.Event{Kind: reconciler.UpdateStatus}))
}
