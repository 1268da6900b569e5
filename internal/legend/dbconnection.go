// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package legend

import (
	"encoding/json"
	"strings"

	"github.com/juju/errors"
)

// DBConnection is the MongoDB connection document published by the
// database side of the legend-db relation.
type DBConnection struct {
	// ReplicaSetURI addresses the replica set, possibly with a
	// database segment appended by the provider.
	ReplicaSetURI string `json:"replica_set_uri"`

	// Databases lists the databases provisioned for this consumer.
	Databases []string `json:"databases"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ParseDBConnection decodes the JSON connection document.
func ParseDBConnection(raw string) (*DBConnection, error) {
	var conn DBConnection
	if err := json.Unmarshal([]byte(raw), &conn); err != nil {
		return nil, errors.NotValidf("database connection document: %v", err)
	}
	return &conn, nil
}

// ServerURI returns the replica set URI to hand to the Studio server,
// and the database name to use with it. Providers append the database
// name as a trailing path segment on the URI; the Studio server wants
// them separate, so when a database is provisioned the segment is
// stripped off the URI.
func (c *DBConnection) ServerURI() (uri, database string) {
	if len(c.Databases) == 0 {
		return c.ReplicaSetURI, ""
	}
	database = c.Databases[0]
	split := strings.Split(c.ReplicaSetURI, "/")
	split = split[:len(split)-1]
	var parts []string
	for _, part := range split {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", database
	}
	return parts[0] + "//" + strings.Join(parts[1:], "/"), database
}
