package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/auth-session-service/internal/domain"
)

type stubValidator struct {
	principal application.Principal
	err       error
}

func (s stubValidator) ValidateAccessToken(_ context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	if token != "good" {
		return application.Principal{}, domain.ErrInvalidToken
	}
	return s.principal, nil
}

func (s stubValidator) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "k1", "kty": "RSA", "alg": "RS256"}}, nil
}

func tokenRequest(t *testing.T, token string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	expires := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	server := NewAuthInternalServer(stubValidator{principal: application.Principal{
		UserID:    userID,
		Email:     "alice@example.com",
		Username:  "alice",
		Roles:     []string{"ROLE_USER"},
		ExpiresAt: expires,
	}})

	resp, err := server.ValidateToken(context.Background(), tokenRequest(t, "good"))
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	fields := resp.GetFields()
	if fields["user_id"].GetStringValue() != userID.String() || fields["username"].GetStringValue() != "alice" {
		t.Fatalf("unexpected response: %v", resp)
	}
	roles := fields["roles"].GetListValue().GetValues()
	if len(roles) != 1 || roles[0].GetStringValue() != "ROLE_USER" {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if int64(fields["expires_at"].GetNumberValue()) != expires.Unix() {
		t.Fatalf("unexpected expires_at: %v", fields["expires_at"])
	}
}

func TestValidateTokenStatusCodes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		svc   stubValidator
		token string
		code  codes.Code
	}{
		{"missing", stubValidator{}, "", codes.InvalidArgument},
		{"revoked", stubValidator{}, "revoked", codes.Unauthenticated},
		{"expired", stubValidator{err: domain.ErrTokenExpired}, "good", codes.Unauthenticated},
		{"ledger down", stubValidator{err: errors.New("db down")}, "good", codes.Internal},
	}
	for _, tc := range cases {
		_, err := NewAuthInternalServer(tc.svc).ValidateToken(context.Background(), tokenRequest(t, tc.token))
		if status.Code(err) != tc.code {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.code, status.Code(err))
		}
	}
}

func TestServiceOverBufconn(t *testing.T) {
	t.Parallel()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor))
	Register(server, NewAuthInternalServer(stubValidator{principal: application.Principal{UserID: uuid.New()}}))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keys := &structpb.Struct{}
	if err := conn.Invoke(ctx, "/"+serviceName+"/GetPublicKeys", &emptypb.Empty{}, keys); err != nil {
		t.Fatalf("get public keys: %v", err)
	}
	list := keys.GetFields()["keys"].GetListValue().GetValues()
	if len(list) != 1 || list[0].GetStructValue().GetFields()["kid"].GetStringValue() != "k1" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	out := &structpb.Struct{}
	err = conn.Invoke(ctx, "/"+serviceName+"/ValidateToken", tokenRequest(t, "bad"), out)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
