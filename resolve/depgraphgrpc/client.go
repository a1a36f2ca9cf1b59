package depgraphgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/ascopes/protoc-integration-go/resolve"
)

func withBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// callContentSubtype names the codec a client.Invoke call should use,
// matching jsonCodec.Name().
const callContentSubtype = codecName

// Client implements resolve.DependencyGraph by invoking a remote
// dependency graph service over an existing gRPC connection.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// NewClient wraps conn, attaching token as a bearer credential on every
// call.
func NewClient(conn *grpc.ClientConn, token string) *Client {
	return &Client{conn: conn, token: token}
}

// Resolve implements resolve.DependencyGraph.
func (c *Client) Resolve(ctx context.Context, coord resolve.MavenCoordinate, depth resolve.Depth, scopes []resolve.Scope, includeOptional bool) ([]string, error) {
	req := coordToRequest(coord, depth, scopes, includeOptional)
	resp := new(ResolveResponse)

	ctx = withBearerToken(ctx, c.token)

	err := c.conn.Invoke(ctx, fullMethodName, req, resp, grpc.CallContentSubtype(callContentSubtype))
	if err != nil {
		return nil, &resolve.ResolutionError{Coordinate: coord, Cause: err}
	}
	if resp.Error != "" {
		return nil, &resolve.ResolutionError{Coordinate: coord, Cause: fmt.Errorf("%s", resp.Error)}
	}
	return resp.Paths, nil
}
