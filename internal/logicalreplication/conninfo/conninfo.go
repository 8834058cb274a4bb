/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package conninfo parses, validates and redacts the crate:// connection
// strings used to reach a publisher cluster. It has no dependency on
// Kubernetes or on any other component of the control plane, so it can be
// unit tested in isolation.
package conninfo

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cratedb/logical-replication/internal/logicalreplication/replerrors"
)

// Mode is the transport mode a publisher connection uses.
type Mode string

const (
	// ModeSniff uses the cluster-internal transport with peer discovery on port 4300.
	ModeSniff Mode = "sniff"
	// ModePgTunnel tunnels over the PostgreSQL wire protocol on port 5432.
	ModePgTunnel Mode = "pg_tunnel"

	scheme = "crate://"

	defaultSniffPort    = 4300
	defaultPgTunnelPort = 5432

	optUser     = "user"
	optPassword = "password"
	optSSLMode  = "sslmode"
	optMode     = "mode"
)

// recognizedOptions is the whitelist of §3: any other key fails parsing.
var recognizedOptions = map[string]struct{}{
	optUser:     {},
	optPassword: {},
	optSSLMode:  {},
	optMode:     {},
}

// ConnectionInfo is the parsed, validated representation of a crate://
// connection string.
type ConnectionInfo struct {
	// Hosts is the ordered sequence of host:port pairs, every entry
	// carrying an explicit port.
	Hosts []string
	// Settings holds every recognized option present in the connection
	// string. "mode" is only present if it was given explicitly; use
	// Mode() for the resolved mode, which defaults to sniff.
	Settings map[string]string
}

// Mode returns the resolved transport mode, defaulting to sniff when the
// "mode" setting was not present in the connection string.
func (c ConnectionInfo) Mode() Mode {
	if mode, ok := c.Settings[optMode]; ok {
		return Mode(mode)
	}
	return ModeSniff
}

// User returns the configured username, if any.
func (c ConnectionInfo) User() string {
	return c.Settings[optUser]
}

// Password returns the configured password, if any.
func (c ConnectionInfo) Password() string {
	return c.Settings[optPassword]
}

// defaultPort returns the default port for mode.
func defaultPort(mode Mode) int {
	if mode == ModePgTunnel {
		return defaultPgTunnelPort
	}
	return defaultSniffPort
}

// Parse parses a crate:// connection string per §4.1. It fails with a
// *replerrors.Error of kind KindInvalidConnectionString when: the scheme
// prefix is absent, an option key is not recognized, or mode is not one
// of {sniff, pg_tunnel}.
func Parse(raw string) (ConnectionInfo, error) {
	if !strings.HasPrefix(raw, scheme) {
		return ConnectionInfo{}, replerrors.New(replerrors.KindInvalidConnectionString,
			"connection string must start with %q", scheme)
	}

	rest := strings.TrimPrefix(raw, scheme)

	hostPart := rest
	query := ""
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		hostPart = rest[:idx]
		query = rest[idx+1:]
	}

	settings, err := parseSettings(query)
	if err != nil {
		return ConnectionInfo{}, err
	}

	mode := ModeSniff
	if raw, ok := settings[optMode]; ok {
		mode = Mode(raw)
	}
	if mode != ModeSniff && mode != ModePgTunnel {
		return ConnectionInfo{}, replerrors.New(replerrors.KindInvalidConnectionString,
			"invalid mode %q, must be one of: sniff, pg_tunnel", mode)
	}

	hosts, err := parseHosts(hostPart, defaultPort(mode))
	if err != nil {
		return ConnectionInfo{}, err
	}

	return ConnectionInfo{Hosts: hosts, Settings: settings}, nil
}

func parseSettings(query string) (map[string]string, error) {
	settings := make(map[string]string)
	if query == "" {
		return settings, nil
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, replerrors.Wrap(replerrors.KindInvalidConnectionString, err, "malformed query string")
	}

	for key, vals := range values {
		if _, ok := recognizedOptions[key]; !ok {
			return nil, replerrors.New(replerrors.KindInvalidConnectionString,
				"unrecognized connection option %q", key)
		}
		if len(vals) > 0 {
			settings[key] = vals[len(vals)-1]
		}
	}

	return settings, nil
}

// parseHosts splits a comma-separated host[:port] list. An empty host
// component is permitted and materializes as ":<default-port>".
func parseHosts(hostPart string, fallbackPort int) ([]string, error) {
	entries := strings.Split(hostPart, ",")
	hosts := make([]string, 0, len(entries))

	for _, entry := range entries {
		host := entry
		port := fallbackPort

		if idx := strings.LastIndexByte(entry, ':'); idx >= 0 {
			host = entry[:idx]
			portStr := entry[idx+1:]
			if portStr != "" {
				parsed, err := strconv.Atoi(portStr)
				if err != nil {
					return nil, replerrors.Wrap(replerrors.KindInvalidConnectionString, err,
						"invalid port in host %q", entry)
				}
				port = parsed
			}
		}

		hosts = append(hosts, fmt.Sprintf("%s:%d", host, port))
	}

	if len(hosts) == 0 {
		return nil, replerrors.New(replerrors.KindInvalidConnectionString, "at least one host is required")
	}

	return hosts, nil
}

// SafeString renders the connection string with user/password redacted,
// always carrying an explicit mode and port, and dropping sslmode when
// the mode is sniff. It never contains the raw user or password values.
func (c ConnectionInfo) SafeString() string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString(strings.Join(c.Hosts, ","))

	params := make([]string, 0, len(c.Settings)+1)
	mode := c.Mode()

	if _, ok := c.Settings[optUser]; ok {
		params = append(params, optUser+"=*")
	}
	if _, ok := c.Settings[optPassword]; ok {
		params = append(params, optPassword+"=*")
	}
	if mode != ModeSniff {
		if sslmode, ok := c.Settings[optSSLMode]; ok {
			params = append(params, optSSLMode+"="+sslmode)
		}
	}
	params = append(params, optMode+"="+string(mode))

	if len(params) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(params, "&"))
	}

	return b.String()
}
