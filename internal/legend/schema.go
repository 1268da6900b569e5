// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package legend defines the FINOS Legend Studio unit: the relations it
// declares, its static configuration surface, and how a complete
// configuration snapshot is turned into the Studio server's artifacts.
package legend

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/juju/loggo/v2"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"

	"github.com/aznashwan/legend-studio-operator/core/config"
	"github.com/aznashwan/legend-studio-operator/core/relation"
	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

var logger = loggo.GetLogger("legend.studio")

// Relation kinds of the Studio unit.
const (
	DBRelation      = "legend-db"
	SDLCRelation    = "legend-sdlc"
	EngineRelation  = "legend-engine"
	IngressRelation = "ingress"
)

// Remote field names, fixed per relation kind.
const (
	DBConnectionField = "legend-db-connection"
	SDLCURLField      = "legend-sdlc-url"
	EngineURLField    = "legend-engine-url"
	IngressURLField   = "url"

	// StudioURLField is published by this unit on the SDLC and Engine
	// relations so the peers can whitelist its redirect URIs.
	StudioURLField = "legend-studio-url"
)

// Static configuration option names.
const (
	ServerUIPathKey          = "server-ui-path"
	ServerHTTPPortKey        = "server-application-connector-port-http"
	ServerLoggingLevelKey    = "server-logging-level"
	ServerPac4jLoggingKey    = "server-pac4j-logging-level"
	GitlabClientIDKey        = "gitlab-client-id"
	GitlabClientSecretKey    = "gitlab-client-secret"
	GitlabDiscoveryURLKey    = "gitlab-openid-discovery-url"
	ExternalHostnameKey      = "application-external-hostname"
	defaultGitlabDiscovery   = "https://gitlab.com/.well-known/openid-configuration"
	defaultServerUIPath      = "/studio"
	defaultServerHTTPPort    = 8080
	defaultServerLoggingInfo = "INFO"
)

// validLoggingLevels are the java.util.logging levels the Studio server
// accepts.
var validLoggingLevels = []string{"INFO", "WARN", "DEBUG", "TRACE", "OFF"}

// Declarations returns the relation declarations of the Studio unit.
func Declarations() []relation.Declaration {
	return []relation.Declaration{{
		Kind:      DBRelation,
		Interface: "legend-mongodb",
		Limit:     1,
		RemoteFields: []relation.Field{
			{Name: DBConnectionField, Format: relation.FormatJSON},
		},
	}, {
		Kind:      SDLCRelation,
		Interface: "legend-sdlc",
		Limit:     1,
		RemoteFields: []relation.Field{
			{Name: SDLCURLField, Format: relation.FormatURL},
		},
	}, {
		Kind:      EngineRelation,
		Interface: "legend-engine",
		Limit:     1,
		RemoteFields: []relation.Field{
			{Name: EngineURLField, Format: relation.FormatURL},
		},
	}, {
		Kind:      IngressRelation,
		Interface: "ingress",
		Optional:  true,
		Limit:     1,
		RemoteFields: []relation.Field{
			{Name: IngressURLField, Format: relation.FormatURL},
		},
	}}
}

// ConfigSchema describes the recognized static configuration options.
var ConfigSchema = environschema.Fields{
	ServerUIPathKey: {
		Description: "The base path the Studio UI is served under.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
	ServerHTTPPortKey: {
		Description: "The HTTP port of the Studio server's application connector.",
		Type:        environschema.Tint,
		Group:       environschema.EnvironGroup,
	},
	ServerLoggingLevelKey: {
		Description: "Logging level of the Studio server.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
	ServerPac4jLoggingKey: {
		Description: "Logging level of the pac4j authentication subsystem.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
	GitlabClientIDKey: {
		Description: "Client ID of the GitLab OAuth application.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
	GitlabClientSecretKey: {
		Description: "Client secret of the GitLab OAuth application.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
		Secret:      true,
	},
	GitlabDiscoveryURLKey: {
		Description: "OpenID discovery document URL of the GitLab instance.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
	ExternalHostnameKey: {
		Description: "Externally routable hostname of the Studio, used for ingress and published URLs.",
		Type:        environschema.Tstring,
		Group:       environschema.EnvironGroup,
	},
}

// ConfigDefaults supplies the default values of the options that have
// one.
var ConfigDefaults = schema.Defaults{
	ServerUIPathKey:       defaultServerUIPath,
	ServerHTTPPortKey:     defaultServerHTTPPort,
	ServerLoggingLevelKey: defaultServerLoggingInfo,
	ServerPac4jLoggingKey: defaultServerLoggingInfo,
	GitlabDiscoveryURLKey: defaultGitlabDiscovery,
	ExternalHostnameKey:   "",
	GitlabClientIDKey:     "",
	GitlabClientSecretKey: "",
}

// NewStaticConfig coerces raw operator-supplied attributes against the
// Studio's configuration schema. Unrecognized keys are dropped with a
// warning rather than failing the unit.
func NewStaticConfig(raw map[string]interface{}) (*config.Config, error) {
	known := config.KnownConfigKeys(ConfigSchema)
	recognized := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if !known.Contains(key) {
			logger.Warningf("ignoring unrecognized config option %q", key)
			continue
		}
		recognized[key] = value
	}
	return config.NewConfig(recognized, ConfigSchema, ConfigDefaults)
}

// ValidateStatic reports problems with the coerced static
// configuration. It is pure and deterministic.
func ValidateStatic(attrs config.ConfigAttributes) []resolver.Problem {
	var problems []resolver.Problem
	for _, key := range []string{GitlabClientIDKey, GitlabClientSecretKey} {
		if attrs.GetString(key, "") == "" {
			problems = append(problems, resolver.Problem{
				Class: resolver.MissingConfig,
				Kind:  key,
			})
		}
	}
	for _, key := range []string{ServerLoggingLevelKey, ServerPac4jLoggingKey} {
		level := attrs.GetString(key, defaultServerLoggingInfo)
		if !validLoggingLevel(level) {
			problems = append(problems, resolver.Problem{
				Class:  resolver.InvalidValue,
				Kind:   key,
				Reason: fmt.Sprintf("%q is not one of %s", level, strings.Join(validLoggingLevels, ", ")),
			})
		}
	}
	if port := attrs.GetInt(ServerHTTPPortKey, defaultServerHTTPPort); port < 1 || port > 65535 {
		problems = append(problems, resolver.Problem{
			Class:  resolver.InvalidValue,
			Kind:   ServerHTTPPortKey,
			Reason: fmt.Sprintf("%d is not a valid port number", port),
		})
	}
	if discovery := attrs.GetString(GitlabDiscoveryURLKey, ""); discovery != "" {
		if u, err := url.Parse(discovery); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, resolver.Problem{
				Class:  resolver.InvalidValue,
				Kind:   GitlabDiscoveryURLKey,
				Reason: fmt.Sprintf("%q is not a well-formed URL", discovery),
			})
		}
	}
	return problems
}

// ValidateInstance applies the Studio's domain checks to joined
// relation data, beyond the per-field format checks.
func ValidateInstance(kind, id string, fields map[string]string) []resolver.Problem {
	if kind != DBRelation {
		return nil
	}
	conn, err := ParseDBConnection(fields[DBConnectionField])
	if err != nil {
		return []resolver.Problem{{
			Class:    resolver.InvalidValue,
			Kind:     kind,
			Instance: id,
			Field:    DBConnectionField,
			Reason:   err.Error(),
		}}
	}
	if conn.ReplicaSetURI == "" {
		return []resolver.Problem{{
			Class:    resolver.IncompleteData,
			Kind:     kind,
			Instance: id,
			Field:    DBConnectionField,
		}}
	}
	return nil
}

func validLoggingLevel(level string) bool {
	for _, valid := range validLoggingLevels {
		if level == valid {
			return true
		}
	}
	return false
}
