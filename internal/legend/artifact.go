// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package legend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/aznashwan/legend-studio-operator/internal/renderer"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

// Paths and names of the Studio workload artifacts.
const (
	ServiceName        = "studio"
	LayerLabel         = "legend-studio"
	HTTPConfigFilePath = "/http-config.json"
	UIConfigFilePath   = "/ui-config.json"

	gitlabClientClass = "org.finos.legend.server.pac4j.gitlab.GitlabClient"
	gitlabScopes      = "openid profile api"
	documentationURL  = "https://legend.finos.org"
)

// serverCommand starts the DropWizard static server hosting the Studio
// UI inside the workload container.
var serverCommand = strings.Join([]string{
	"/bin/sh -c 'java -XX:+ExitOnOutOfMemoryError -Xss4M -XX:MaxRAMPercentage=60",
	"-Dfile.encoding=UTF8",
	"-cp /app/bin/webapp-content:/app/bin/*",
	"org.finos.legend.server.shared.staticserver.Server server",
	HTTPConfigFilePath + "'",
}, " ")

// BuildArtifact renders the Studio server's configuration files and
// its pebble service layer from a complete snapshot. The result is a
// pure function of the snapshot: identical snapshots yield
// byte-identical artifacts.
func BuildArtifact(snap resolver.Snapshot) (*renderer.Artifact, error) {
	httpConfig, err := buildHTTPConfig(snap)
	if err != nil {
		return nil, errors.Trace(err)
	}
	uiConfig, err := buildUIConfig(snap)
	if err != nil {
		return nil, errors.Trace(err)
	}
	layer, err := buildLayer()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &renderer.Artifact{
		ServiceName: ServiceName,
		LayerLabel:  LayerLabel,
		LayerYAML:   layer,
		Files: []renderer.File{
			{Path: HTTPConfigFilePath, Content: httpConfig},
			{Path: UIConfigFilePath, Content: uiConfig},
		},
	}, nil
}

func buildHTTPConfig(snap resolver.Snapshot) ([]byte, error) {
	dbRaw := snap.Field(DBRelation, DBConnectionField)
	if dbRaw == "" {
		return nil, errors.NotValidf("snapshot without a database connection")
	}
	conn, err := ParseDBConnection(dbRaw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	mongoURI, mongoDB := conn.ServerURI()

	uiPath := snap.Static.GetString(ServerUIPathKey, defaultServerUIPath)
	port := snap.Static.GetInt(ServerHTTPPortKey, defaultServerHTTPPort)
	level := snap.Static.GetString(ServerLoggingLevelKey, defaultServerLoggingInfo)
	pac4jLevel := snap.Static.GetString(ServerPac4jLoggingKey, defaultServerLoggingInfo)

	// Maps marshal with sorted keys, keeping the rendering
	// deterministic for the artifact hash.
	doc := map[string]interface{}{
		"uiPath":      uiPath,
		"html5Router": true,
		"server": map[string]interface{}{
			"type":                   "simple",
			"applicationContextPath": "/",
			"adminContextPath":       uiPath + "/admin",
			"connector": map[string]interface{}{
				"type": "http",
				"port": port,
			},
		},
		"logging": map[string]interface{}{
			"level": level,
			"loggers": map[string]interface{}{
				"root":      map[string]interface{}{"level": level},
				"org.pac4j": map[string]interface{}{"level": pac4jLevel},
			},
			"appenders": []interface{}{
				map[string]interface{}{"type": "console", "logFormat": "%msg\r\n"},
			},
		},
		"pac4j": map[string]interface{}{
			"callbackPrefix": uiPath + "/log.in",
			"bypassPaths":    []interface{}{uiPath + "/admin/healthcheck"},
			"mongoUri":       mongoURI,
			"mongoDb":        mongoDB,
			"clients": []interface{}{
				map[string]interface{}{
					gitlabClientClass: map[string]interface{}{
						"name":         "gitlab",
						"clientId":     snap.Static.GetString(GitlabClientIDKey, ""),
						"secret":       snap.Static.GetString(GitlabClientSecretKey, ""),
						"discoveryUri": snap.Static.GetString(GitlabDiscoveryURLKey, defaultGitlabDiscovery),
						"scope":        gitlabScopes,
					},
				},
			},
			"mongoSession": map[string]interface{}{
				"enabled":    true,
				"collection": "userSessions",
			},
		},
		"routerExemptPaths": []interface{}{
			"/editor.worker.js",
			"/json.worker.js",
			"/editor.worker.js.map",
			"/json.worker.js.map",
			"/version.json",
			"/config.json",
			"/favicon.ico",
			"/static",
		},
		"localAssetPaths": map[string]interface{}{
			uiPath + "/config.json": UIConfigFilePath,
		},
	}
	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

func buildUIConfig(snap resolver.Snapshot) ([]byte, error) {
	sdlcURL := snap.Field(SDLCRelation, SDLCURLField)
	engineURL := snap.Field(EngineRelation, EngineURLField)
	if sdlcURL == "" || engineURL == "" {
		return nil, errors.NotValidf("snapshot without SDLC and Engine endpoints")
	}
	doc := map[string]interface{}{
		"appName": "studio",
		"env":     "prod",
		"sdlc": map[string]interface{}{
			"url": sdlcURL + "/api",
		},
		"engine": map[string]interface{}{
			"url": engineURL + "/api",
		},
		"documentation": map[string]interface{}{
			"url": documentationURL,
		},
		"options": map[string]interface{}{
			"core": map[string]interface{}{
				"TEMPORARY__disableServiceRegistration": true,
			},
		},
	}
	out, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

func buildLayer() (string, error) {
	layer := map[string]interface{}{
		"summary":     "Legend Studio layer.",
		"description": "Pebble service layer for the FINOS Legend Studio server.",
		"services": map[string]interface{}{
			ServiceName: map[string]interface{}{
				"override": "replace",
				"summary":  "The Legend Studio server.",
				"command":  serverCommand,
				"startup":  "disabled",
			},
		},
	}
	out, err := yaml.Marshal(layer)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(out), nil
}

// StudioURL returns the externally reachable base URL of the Studio
// UI. Ingress relation data wins over the configured hostname, which
// in turn wins over the unit's own address.
func StudioURL(snap resolver.Snapshot, unitAddress string) string {
	if ingress := snap.Field(IngressRelation, IngressURLField); ingress != "" {
		return strings.TrimSuffix(ingress, "/")
	}
	host := snap.Static.GetString(ExternalHostnameKey, "")
	if host == "" {
		host = unitAddress
	}
	if host == "" {
		return ""
	}
	port := snap.Static.GetInt(ServerHTTPPortKey, defaultServerHTTPPort)
	uiPath := snap.Static.GetString(ServerUIPathKey, defaultServerUIPath)
	return fmt.Sprintf("http://%s:%d%s", host, port, uiPath)
}
