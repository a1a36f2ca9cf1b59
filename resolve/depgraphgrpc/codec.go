// Package depgraphgrpc exposes resolve.DependencyGraph over gRPC, so a
// build tool's dependency-graph implementation can run out-of-process
// from the core. Authentication follows a bearer-JWT unary interceptor
// pattern; message encoding uses a small JSON codec instead
// of a protoc-generated one, since this is exactly the protoc-plugin
// problem the rest of this module solves and the transport cannot
// bootstrap on itself.
package depgraphgrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
