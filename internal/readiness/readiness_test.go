// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package readiness_test

import (
	"github.com/juju/errors"
	gc "gopkg.in/check.v1"

	"github.com/aznashwan/legend-studio-operator/core/status"
	"github.com/aznashwan/legend-studio-operator/internal/readiness"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

type EvaluateSuite struct{}

var _ = gc.Suite(&EvaluateSuite{})

var readyEnv = readiness.Environment{ResourcePresent: true}

func (s *EvaluateSuite) TestActive(c *gc.C) {
	info := readiness.Evaluate(nil, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Active)
}

func (s *EvaluateSuite) TestMissingRelationBlocks(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.MissingRelation, Kind: "legend-db"},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Blocked)
	c.Assert(info.Message, gc.Equals, "missing mandatory relation(s): legend-db")
}

func (s *EvaluateSuite) TestMissingConfigBlocks(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.MissingConfig, Kind: "gitlab-client-id"},
		{Class: resolver.MissingConfig, Kind: "gitlab-client-secret"},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Blocked)
	c.Assert(info.Message, gc.Equals,
		"missing required config option(s): gitlab-client-id, gitlab-client-secret")
}

func (s *EvaluateSuite) TestIncompleteDataWaits(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.IncompleteData, Kind: "legend-sdlc", Field: "legend-sdlc-url"},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Waiting)
	c.Assert(info.Message, gc.Equals, "awaiting relation data: legend-sdlc (legend-sdlc-url)")
}

func (s *EvaluateSuite) TestInvalidValueErrors(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{
			Class: resolver.InvalidValue, Kind: "legend-sdlc",
			Instance: "legend-sdlc:1", Field: "legend-sdlc-url",
			Reason: `"bogus" is not a well-formed URL`,
		},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Error)
	c.Assert(info.Message, gc.Equals,
		`invalid configuration: relation "legend-sdlc" field "legend-sdlc-url": "bogus" is not a well-formed URL`)
}

func (s *EvaluateSuite) TestInvalidValueDominatesMissing(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.MissingRelation, Kind: "legend-db"},
		{Class: resolver.InvalidValue, Kind: "server-logging-level", Reason: "not a recognized level"},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Error)
}

func (s *EvaluateSuite) TestMissingRelationDominatesIncomplete(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.IncompleteData, Kind: "legend-sdlc", Field: "legend-sdlc-url"},
		{Class: resolver.MissingRelation, Kind: "legend-db"},
	}, readyEnv)
	c.Assert(info.Status, gc.Equals, status.Blocked)
}

func (s *EvaluateSuite) TestResourceMissingBlocks(c *gc.C) {
	info := readiness.Evaluate(nil, readiness.Environment{ResourcePresent: false})
	c.Assert(info.Status, gc.Equals, status.Blocked)
	c.Assert(info.Message, gc.Equals, "workload container resource is not present")
}

func (s *EvaluateSuite) TestApplyFailureErrors(c *gc.C) {
	info := readiness.Evaluate(nil, readiness.Environment{
		ResourcePresent: true,
		ApplyError:      errors.New("service refused new settings"),
	})
	c.Assert(info.Status, gc.Equals, status.Error)
	c.Assert(info.Message, gc.Equals,
		"cannot apply workload configuration: service refused new settings")
}

func (s *EvaluateSuite) TestApplyFailureOnlyMattersWhenComplete(c *gc.C) {
	info := readiness.Evaluate([]resolver.Problem{
		{Class: resolver.IncompleteData, Kind: "legend-sdlc", Field: "legend-sdlc-url"},
	}, readiness.Environment{
		ResourcePresent: true,
		ApplyError:      errors.New("stale failure"),
	})
	c.Assert(info.Status, gc.Equals, status.Waiting)
}
