// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package legend_test

import (
	"encoding/json"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
	"gopkg.in/yaml.v2"

	"github.com/aznashwan/legend-studio-operator/internal/legend"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

type ArtifactSuite struct{}

var _ = gc.Suite(&ArtifactSuite{})

func completeSnapshot(c *gc.C, overrides map[string]interface{}) resolver.Snapshot {
	return resolver.Snapshot{
		Static: validAttrs(c, overrides),
		Relations: map[string][]resolver.InstanceData{
			legend.DBRelation: {{
				ID: "legend-db:0",
				Fields: map[string]string{
					legend.DBConnectionField: `{"replica_set_uri": "mongodb://u:p@host/legend", "databases": ["legend"]}`,
				},
			}},
			legend.SDLCRelation: {{
				ID: "legend-sdlc:1",
				Fields: map[string]string{
					legend.SDLCURLField: "https://sdlc.example.com",
				},
			}},
			legend.EngineRelation: {{
				ID: "legend-engine:2",
				Fields: map[string]string{
					legend.EngineURLField: "https://engine.example.com",
				},
			}},
		},
	}
}

func (s *ArtifactSuite) TestBuildArtifact(c *gc.C) {
	artifact, err := legend.BuildArtifact(completeSnapshot(c, nil))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(artifact.Validate(), jc.ErrorIsNil)
	c.Check(artifact.ServiceName, gc.Equals, "studio")
	c.Check(artifact.LayerLabel, gc.Equals, "legend-studio")
	c.Assert(artifact.Files, gc.HasLen, 2)
	c.Check(artifact.Files[0].Path, gc.Equals, "/http-config.json")
	c.Check(artifact.Files[1].Path, gc.Equals, "/ui-config.json")
}

func (s *ArtifactSuite) TestBuildArtifactDeterministic(c *gc.C) {
	a, err := legend.BuildArtifact(completeSnapshot(c, nil))
	c.Assert(err, jc.ErrorIsNil)
	b, err := legend.BuildArtifact(completeSnapshot(c, nil))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(a.Hash(), gc.Equals, b.Hash())
}

func (s *ArtifactSuite) TestHTTPConfigContent(c *gc.C) {
	artifact, err := legend.BuildArtifact(completeSnapshot(c, map[string]interface{}{
		legend.ServerUIPathKey:       "/legend",
		legend.ServerLoggingLevelKey: "DEBUG",
	}))
	c.Assert(err, jc.ErrorIsNil)

	var doc map[string]interface{}
	c.Assert(json.Unmarshal(artifact.Files[0].Content, &doc), jc.ErrorIsNil)
	c.Check(doc["uiPath"], gc.Equals, "/legend")
	c.Check(doc["html5Router"], gc.Equals, true)

	server := doc["server"].(map[string]interface{})
	c.Check(server["adminContextPath"], gc.Equals, "/legend/admin")
	connector := server["connector"].(map[string]interface{})
	c.Check(connector["port"], gc.Equals, float64(8080))

	logging := doc["logging"].(map[string]interface{})
	c.Check(logging["level"], gc.Equals, "DEBUG")

	pac4j := doc["pac4j"].(map[string]interface{})
	c.Check(pac4j["mongoUri"], gc.Equals, "mongodb://u:p@host")
	c.Check(pac4j["mongoDb"], gc.Equals, "legend")
	c.Check(pac4j["callbackPrefix"], gc.Equals, "/legend/log.in")
	clients := pac4j["clients"].([]interface{})
	c.Assert(clients, gc.HasLen, 1)
	gitlab := clients[0].(map[string]interface{})["org.finos.legend.server.pac4j.gitlab.GitlabClient"].(map[string]interface{})
	c.Check(gitlab["clientId"], gc.Equals, "abc123")
	c.Check(gitlab["secret"], gc.Equals, "s3cr3t")
	c.Check(gitlab["scope"], gc.Equals, "openid profile api")

	assets := doc["localAssetPaths"].(map[string]interface{})
	c.Check(assets["/legend/config.json"], gc.Equals, "/ui-config.json")
}

func (s *ArtifactSuite) TestUIConfigContent(c *gc.C) {
	artifact, err := legend.BuildArtifact(completeSnapshot(c, nil))
	c.Assert(err, jc.ErrorIsNil)

	var doc map[string]interface{}
	c.Assert(json.Unmarshal(artifact.Files[1].Content, &doc), jc.ErrorIsNil)
	c.Check(doc["appName"], gc.Equals, "studio")
	c.Check(doc["sdlc"].(map[string]interface{})["url"], gc.Equals, "https://sdlc.example.com/api")
	c.Check(doc["engine"].(map[string]interface{})["url"], gc.Equals, "https://engine.example.com/api")
}

func (s *ArtifactSuite) TestLayerContent(c *gc.C) {
	artifact, err := legend.BuildArtifact(completeSnapshot(c, nil))
	c.Assert(err, jc.ErrorIsNil)

	var layer map[interface{}]interface{}
	c.Assert(yaml.Unmarshal([]byte(artifact.LayerYAML), &layer), jc.ErrorIsNil)
	services := layer["services"].(map[interface{}]interface{})
	studio := services["studio"].(map[interface{}]interface{})
	c.Check(studio["override"], gc.Equals, "replace")
	c.Check(studio["command"], gc.Matches, ".*org.finos.legend.server.shared.staticserver.Server server /http-config.json.*")
}

func (s *ArtifactSuite) TestBuildArtifactIncompleteSnapshot(c *gc.C) {
	snap := completeSnapshot(c, nil)
	delete(snap.Relations, legend.DBRelation)
	_, err := legend.BuildArtifact(snap)
	c.Assert(err, gc.ErrorMatches, "snapshot without a database connection not valid")
}

func (s *ArtifactSuite) TestStudioURLPrecedence(c *gc.C) {
	snap := completeSnapshot(c, map[string]interface{}{
		legend.ExternalHostnameKey: "studio.example.com",
	})
	c.Check(legend.StudioURL(snap, "10.0.0.7"), gc.Equals, "http://studio.example.com:8080/studio")

	snap.Relations[legend.IngressRelation] = []resolver.InstanceData{{
		ID:     "ingress:3",
		Fields: map[string]string{legend.IngressURLField: "https://legend.example.com/studio/"},
	}}
	c.Check(legend.StudioURL(snap, "10.0.0.7"), gc.Equals, "https://legend.example.com/studio")
}

func (s *ArtifactSuite) TestStudioURLFallsBackToUnitAddress(c *gc.C) {
	snap := completeSnapshot(c, nil)
	c.Check(legend.StudioURL(snap, "10.0.0.7"), gc.Equals, "http://10.0.0.7:8080/studio")
	c.Check(legend.StudioURL(snap, ""), gc.Equals, "")
}

func (s *ArtifactSuite) TestOutgoingFields(c *gc.C) {
	snap := completeSnapshot(c, nil)

	fields, ok := legend.OutgoingFields(legend.SDLCRelation, snap, "10.0.0.7")
	c.Assert(ok, jc.IsTrue)
	c.Check(fields, jc.DeepEquals, map[string]string{
		"legend-studio-url": "http://10.0.0.7:8080/studio",
	})

	fields, ok = legend.OutgoingFields(legend.IngressRelation, snap, "10.0.0.7")
	c.Assert(ok, jc.IsTrue)
	c.Check(fields, jc.DeepEquals, map[string]string{
		"service-hostname": "10.0.0.7",
		"service-name":     "studio",
		"service-port":     "8080",
	})

	_, ok = legend.OutgoingFields(legend.DBRelation, snap, "10.0.0.7")
	c.Check(ok, jc.IsFalse)

	_, ok = legend.OutgoingFields(legend.SDLCRelation, snap, "")
	c.Check(ok, jc.IsFalse)
}
