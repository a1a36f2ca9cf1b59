package depgraphgrpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/ascopes/protoc-integration-go/resolve"
)

// JWTSecretEnvVar names the environment variable conventionally used to
// hold the HMAC secret for AuthInterceptor. This package never reads it:
// the secret is always passed to AuthInterceptor explicitly.
const JWTSecretEnvVar = "DEPGRAPH_JWT_SECRET"

// RegisterServer registers impl's Resolve method against grpcServer
// under the depgraph.DependencyGraph service name.
func RegisterServer(grpcServer *grpc.Server, impl resolve.DependencyGraph) {
	desc := serviceDesc(impl)
	grpcServer.RegisterService(&desc, impl)
}

// AuthInterceptor validates a bearer JWT signed with secretKey on every
// unary call, logging the token's audience/issuer/subject/name claims on
// success, grounded in the same shape as the build tool's own provider
// authentication.
func AuthInterceptor(secretKey string, log logr.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, fmt.Errorf("depgraphgrpc: invalid metadata")
		}

		tokenRaw, ok := md["authorization"]
		if !ok || len(tokenRaw) != 1 {
			return nil, fmt.Errorf("depgraphgrpc: unauthorized")
		}

		tokenString := strings.TrimPrefix(tokenRaw[0], "Bearer ")
		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			return []byte(secretKey), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return nil, err
		}
		if !token.Valid {
			return nil, fmt.Errorf("depgraphgrpc: unauthorized")
		}

		aud, _ := token.Claims.GetAudience()
		iss, _ := token.Claims.GetIssuer()
		sub, _ := token.Claims.GetSubject()
		var name string
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			name = fmt.Sprint(claims["name"])
		}
		log.Info("dependency graph request authenticated", "audience", aud, "issuer", iss, "subject", sub, "name", name)

		return handler(ctx, req)
	}
}
