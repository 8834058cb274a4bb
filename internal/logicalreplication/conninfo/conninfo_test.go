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

package conninfo

import (
	"strings"
	"testing"

	"github.com/cratedb/logical-replication/internal/logicalreplication/replerrors"
)

func TestParseSimpleURL(t *testing.T) {
	// S1
	info, err := Parse("crate://example.com:1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Hosts) != 1 || info.Hosts[0] != "example.com:1234" {
		t.Fatalf("unexpected hosts: %v", info.Hosts)
	}
	if len(info.Settings) != 0 {
		t.Fatalf("expected empty settings, got: %v", info.Settings)
	}
}

func TestParseDefaultPort(t *testing.T) {
	// S2
	info, err := Parse("crate://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Hosts) != 1 || info.Hosts[0] != "example.com:4300" {
		t.Fatalf("unexpected hosts: %v", info.Hosts)
	}
}

func TestParsePgTunnelDefaultPort(t *testing.T) {
	// S3
	info, err := Parse("crate://1.2.3.4?mode=pg_tunnel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.Hosts) != 1 || info.Hosts[0] != "1.2.3.4:5432" {
		t.Fatalf("unexpected hosts: %v", info.Hosts)
	}
	if info.Mode() != ModePgTunnel {
		t.Fatalf("expected pg_tunnel mode, got: %v", info.Mode())
	}
}

func TestSafeStringRedaction(t *testing.T) {
	// S4
	info, err := Parse("crate://h?user=u&password=p&sslmode=disable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := info.SafeString()
	want := "crate://h:4300?user=*&password=*&mode=sniff"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseInvalidOption(t *testing.T) {
	// S5
	_, err := Parse("crate://?foo=bar")
	if err == nil {
		t.Fatal("expected error")
	}
	if !replerrors.Is(err, replerrors.KindInvalidConnectionString) {
		t.Fatalf("expected InvalidConnectionString, got: %v", err)
	}
	if !strings.Contains(err.Error(), "foo") {
		t.Fatalf("expected message to name 'foo', got: %v", err)
	}
}

func TestParseInvalidMode(t *testing.T) {
	// S6
	_, err := Parse("crate://h?mode=foo")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "sniff") || !strings.Contains(err.Error(), "pg_tunnel") {
		t.Fatalf("expected message to list valid modes, got: %v", err)
	}
}

func TestParseMissingScheme(t *testing.T) {
	_, err := Parse("example.com:1234")
	if !replerrors.Is(err, replerrors.KindInvalidConnectionString) {
		t.Fatalf("expected InvalidConnectionString, got: %v", err)
	}
}

func TestParseMultipleHosts(t *testing.T) {
	info, err := Parse("crate://a,b:9999,c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a:4300", "b:9999", "c:4300"}
	for i, h := range want {
		if info.Hosts[i] != h {
			t.Fatalf("host %d: got %q, want %q", i, info.Hosts[i], h)
		}
	}
}

// property 1: URL round-trip modulo redaction.
func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"crate://example.com:1234",
		"crate://example.com",
		"crate://1.2.3.4?mode=pg_tunnel",
		"crate://h?user=u&password=p&sslmode=disable",
	}
	for _, in := range inputs {
		info, err := Parse(in)
		if err != nil {
			t.Fatalf("parse(%q): %v", in, err)
		}
		reparsed, err := Parse(info.SafeString())
		if err != nil {
			t.Fatalf("re-parse of safe string %q: %v", info.SafeString(), err)
		}
		if reparsed.Mode() != info.Mode() {
			t.Fatalf("mode mismatch after round-trip: %v != %v", reparsed.Mode(), info.Mode())
		}
		if len(reparsed.Hosts) != len(info.Hosts) {
			t.Fatalf("host count mismatch after round-trip")
		}
	}
}

// property 2: host defaulting.
func TestHostDefaultingProperty(t *testing.T) {
	info, err := Parse("crate://a,b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range info.Hosts {
		if !strings.Contains(h, ":") {
			t.Fatalf("host %q missing port", h)
		}
	}
}

// property 3: option whitelist.
func TestOptionWhitelistProperty(t *testing.T) {
	for _, key := range []string{"foo", "timeout", "database"} {
		_, err := Parse("crate://h?" + key + "=1")
		if !replerrors.Is(err, replerrors.KindInvalidConnectionString) {
			t.Fatalf("key %q: expected InvalidConnectionString, got: %v", key, err)
		}
	}
}

// property 6: mask invariant.
func TestMaskInvariant(t *testing.T) {
	info, err := Parse("crate://h?user=supersecretuser&password=supersecretpass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	safe := info.SafeString()
	if strings.Contains(safe, "supersecretuser") || strings.Contains(safe, "supersecretpass") {
		t.Fatalf("safe string leaked a credential: %q", safe)
	}
}
