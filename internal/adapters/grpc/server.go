package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
)

const serviceName = "mesh.auth.v1.AuthInternalService"

// AuthInternalService is the handler contract behind the hand-written ServiceDesc.
type AuthInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPublicKeys(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TokenValidator is what the internal server needs from the application layer.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (application.Principal, error)
	PublicJWKs() ([]map[string]any, error)
}

type AuthInternalServer struct {
	service TokenValidator
}

func NewAuthInternalServer(service TokenValidator) *AuthInternalServer {
	return &AuthInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc AuthInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AuthInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler: unaryHandler("ValidateToken", func() *structpb.Struct { return &structpb.Struct{} },
					func(ctx context.Context, req *structpb.Struct) (any, error) { return svc.ValidateToken(ctx, req) }),
			},
			{
				MethodName: "GetPublicKeys",
				Handler: unaryHandler("GetPublicKeys", func() *emptypb.Empty { return &emptypb.Empty{} },
					func(ctx context.Context, req *emptypb.Empty) (any, error) { return svc.GetPublicKeys(ctx, req) }),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "auth/v1/auth_internal.proto",
	}, svc)
}

// ValidateToken answers with the principal behind an access token. Revoked,
// expired and foreign tokens are all Unauthenticated.
func (s *AuthInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := req.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	principal, err := s.service.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}

	roles := make([]any, 0, len(principal.Roles))
	for _, role := range principal.Roles {
		roles = append(roles, role)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"valid":      true,
		"user_id":    principal.UserID.String(),
		"email":      principal.Email,
		"username":   principal.Username,
		"roles":      roles,
		"expires_at": principal.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *AuthInternalServer) GetPublicKeys(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	keys, err := s.service.PublicJWKs()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get keys: %v", err)
	}
	list := make([]any, 0, len(keys))
	for _, k := range keys {
		list = append(list, k)
	}
	resp, err := structpb.NewStruct(map[string]any{
		"keys": list,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, domain.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid token")
	default:
		return status.Error(codes.Internal, "token validation failed")
	}
}

func unaryHandler[Req any](method string, newReq func() Req, call func(context.Context, Req) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(Req)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

// LoggingInterceptor logs one line per unary call.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	fields := []any{
		"operation", "grpc_request",
		"method", info.FullMethod,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	logger := slog.Default().With("service", "auth-session-service", "module", "grpc", "layer", "adapter")
	switch code {
	case codes.OK:
		logger.InfoContext(ctx, "grpc request completed", append(fields, "outcome", "success")...)
	case codes.Internal, codes.Unknown, codes.Unavailable:
		logger.ErrorContext(ctx, "grpc request completed", append(fields, "outcome", "failure")...)
	default:
		logger.WarnContext(ctx, "grpc request completed", append(fields, "outcome", "failure")...)
	}
	return resp, err
}
