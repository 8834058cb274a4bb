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

// Package transport carries the wire RPCs of §6 over a grpc connection
// to a publisher cluster in sniff mode, using a JSON codec instead of
// hand-rolled protobuf generation: the request/response shapes are
// plain Go structs, and google.golang.org/grpc's encoding.Codec
// extension point lets them ride the real grpc client stack unmodified.
package transport

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "logical-replication-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements grpc/encoding.Codec by marshalling with
// encoding/json, so request/response types need no .pb.go generation.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

// PublicationsStateRequest is the request shape of §6's PublicationsStateAction.
type PublicationsStateRequest struct {
	Publications []string `json:"publications"`
	User         string   `json:"user"`
}

// RelationDescriptor is one relation reported by the publisher, sufficient
// to create the relation locally.
type RelationDescriptor struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// PublicationsStateResponse is the response shape of §6's PublicationsStateAction.
type PublicationsStateResponse struct {
	ConcreteIndices   []string              `json:"concreteIndices"`
	ConcreteTemplates []string              `json:"concreteTemplates"`
	Relations         []RelationDescriptor  `json:"relations"`
}

// UpdateSubscriptionRequest is the request shape of §6's UpdateSubscriptionAction.
type UpdateSubscriptionRequest struct {
	Name         string            `json:"name"`
	Relations    map[string]string `json:"relations"`
	FailureReason string           `json:"failureReason,omitempty"`
}

// AcknowledgedResponse is the response shape of every mutating wire RPC.
type AcknowledgedResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

const (
	publicationsStateMethod = "/logicalreplication.Transport/PublicationsState"
	updateSubscriptionMethod = "/logicalreplication.Transport/UpdateSubscription"
)

// Client issues the wire RPCs of §6 against one publisher connection.
type Client interface {
	// PublicationsState issues a PublicationsStateAction RPC.
	PublicationsState(ctx context.Context, req PublicationsStateRequest) (PublicationsStateResponse, error)
	// UpdateSubscription issues an UpdateSubscriptionAction RPC.
	UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (AcknowledgedResponse, error)
	// Close releases the underlying connection.
	Close() error
}

// grpcClient is the real Client, backed by a grpc.ClientConn using the
// JSON codec registered above.
type grpcClient struct {
	conn *grpc.ClientConn
}

// NewClient dials target (host:port) and returns a Client using the
// json codec in place of generated protobuf stubs.
func NewClient(ctx context.Context, target string, opts ...grpc.DialOption) (Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &grpcClient{conn: conn}, nil
}

func (c *grpcClient) PublicationsState(
	ctx context.Context,
	req PublicationsStateRequest,
) (PublicationsStateResponse, error) {
	var resp PublicationsStateResponse
	if err := c.conn.Invoke(ctx, publicationsStateMethod, &req, &resp); err != nil {
		return PublicationsStateResponse{}, err
	}
	return resp, nil
}

func (c *grpcClient) UpdateSubscription(
	ctx context.Context,
	req UpdateSubscriptionRequest,
) (AcknowledgedResponse, error) {
	var resp AcknowledgedResponse
	if err := c.conn.Invoke(ctx, updateSubscriptionMethod, &req, &resp); err != nil {
		return AcknowledgedResponse{}, err
	}
	return resp, nil
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
