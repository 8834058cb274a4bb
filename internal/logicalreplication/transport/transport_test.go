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

package transport

import (
	"testing"

	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRoundTrips(t *testing.T) {
	codec := encoding.GetCodec(jsonCodecName)
	if codec == nil {
		t.Fatal("expected the json codec to be registered under its name")
	}

	req := PublicationsStateRequest{Publications: []string{"pub1"}, User: "crate"}

	data, err := codec.Marshal(&req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded PublicationsStateRequest
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.User != req.User || len(decoded.Publications) != 1 || decoded.Publications[0] != "pub1" {
		t.Fatalf("round-tripped value %+v does not match original %+v", decoded, req)
	}
}
