// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package legend

import (
	"strconv"

	"github.com/aznashwan/legend-studio-operator/internal/resolver"
)

// OutgoingFields derives the local fields the Studio publishes on a
// relation of the given kind. It returns false when the unit has
// nothing to publish there, either because the kind carries no local
// data or because the Studio URL cannot be determined yet.
func OutgoingFields(kind string, snap resolver.Snapshot, unitAddress string) (map[string]string, bool) {
	switch kind {
	case SDLCRelation, EngineRelation:
		// SDLC and Engine register the Studio's URL as a permitted
		// OAuth redirect target.
		url := StudioURL(snap, unitAddress)
		if url == "" {
			return nil, false
		}
		return map[string]string{StudioURLField: url}, true
	case IngressRelation:
		host := snap.Static.GetString(ExternalHostnameKey, "")
		if host == "" {
			host = unitAddress
		}
		if host == "" {
			return nil, false
		}
		return map[string]string{
			"service-hostname": host,
			"service-name":     ServiceName,
			"service-port":     strconv.Itoa(snap.Static.GetInt(ServerHTTPPortKey, defaultServerHTTPPort)),
		}, true
	}
	return nil, false
}
