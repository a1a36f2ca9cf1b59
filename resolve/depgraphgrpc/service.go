package depgraphgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ascopes/protoc-integration-go/resolve"
)

const (
	serviceName    = "depgraph.DependencyGraph"
	resolveMethod  = "Resolve"
	fullMethodName = "/" + serviceName + "/" + resolveMethod
)

// ResolveRequest is the wire shape of a DependencyGraph.Resolve call.
type ResolveRequest struct {
	GroupID         string   `json:"groupId"`
	ArtifactID      string   `json:"artifactId"`
	Version         string   `json:"version"`
	Type            string   `json:"type"`
	Classifier      string   `json:"classifier"`
	Transitive      bool     `json:"transitive"`
	Scopes          []string `json:"scopes"`
	IncludeOptional bool     `json:"includeOptional"`
}

// ResolveResponse is the wire shape of a DependencyGraph.Resolve reply.
type ResolveResponse struct {
	Paths []string `json:"paths"`
	Error string   `json:"error,omitempty"`
}

func coordToRequest(coord resolve.MavenCoordinate, depth resolve.Depth, scopes []resolve.Scope, includeOptional bool) *ResolveRequest {
	scopeStrs := make([]string, len(scopes))
	for i, s := range scopes {
		scopeStrs[i] = string(s)
	}
	return &ResolveRequest{
		GroupID:         coord.GroupID,
		ArtifactID:      coord.ArtifactID,
		Version:         coord.Version,
		Type:            coord.Type,
		Classifier:      coord.Classifier,
		Transitive:      depth == resolve.Transitive,
		Scopes:          scopeStrs,
		IncludeOptional: includeOptional,
	}
}

func requestToCoord(req *ResolveRequest) (resolve.MavenCoordinate, resolve.Depth, []resolve.Scope, bool) {
	coord := resolve.MavenCoordinate{
		GroupID:    req.GroupID,
		ArtifactID: req.ArtifactID,
		Version:    req.Version,
		Type:       req.Type,
		Classifier: req.Classifier,
	}
	depth := resolve.Direct
	if req.Transitive {
		depth = resolve.Transitive
	}
	scopes := make([]resolve.Scope, len(req.Scopes))
	for i, s := range req.Scopes {
		scopes[i] = resolve.Scope(s)
	}
	return coord, depth, scopes, req.IncludeOptional
}

// serviceDesc is a hand-written grpc.ServiceDesc for the single unary
// Resolve method, registered against the jsonCodec rather than a
// protoc-generated codec.
func serviceDesc(impl resolve.DependencyGraph) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*resolve.DependencyGraph)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: resolveMethod,
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					req := new(ResolveRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					handler := func(ctx context.Context, req any) (any, error) {
						coord, depth, scopes, includeOptional := requestToCoord(req.(*ResolveRequest))
						paths, err := impl.Resolve(ctx, coord, depth, scopes, includeOptional)
						if err != nil {
							return &ResolveResponse{Error: err.Error()}, nil
						}
						return &ResolveResponse{Paths: paths}, nil
					}
					if interceptor == nil {
						return handler(ctx, req)
					}
					info := &grpc.UnaryServerInfo{FullMethod: fullMethodName}
					return interceptor(ctx, req, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "depgraph.proto",
	}
}
