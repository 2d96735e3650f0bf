package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

const identityServiceName = "campusmarket.identity.v1.Identity"

// IdentityServer is the gRPC surface of user-service.
type IdentityServer interface {
	GetUser(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SetRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func getUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + identityServiceName + "/GetUser"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).GetUser(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func setRoleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).SetRole(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + identityServiceName + "/SetRole"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).SetRole(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: identityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetUser", Handler: getUserHandler},
		{MethodName: "SetRole", Handler: setRoleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "identity.proto",
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&identityServiceDesc, srv)
}

// Identity serves user lookups and role changes over gRPC.
type Identity struct {
	svc *Service
}

func NewIdentity(svc *Service) *Identity { return &Identity{svc: svc} }

func grpcError(err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, "user not found")
	case errors.Is(err, apperr.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Errorf(codes.Unavailable, "lookup error: %v", err)
	}
}

func (s *Identity) GetUser(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	u, err := s.svc.Get(ctx, in.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(u)
}

func (s *Identity) SetRole(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	role := Role(in.GetFields()["role"].GetStringValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.svc.SetRole(ctx, id, role); err != nil {
		return nil, grpcError(err)
	}
	u, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(u)
}

func toStruct(u *User) (*structpb.Struct, error) {
	m := map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"name":      u.Name,
		"role":      string(u.Role),
		"active":    u.Active,
		"createdAt": u.CreatedAt.Format(time.RFC3339Nano),
	}
	if u.Location != nil {
		m["location"] = map[string]any{
			"label":     u.Location.Label,
			"latitude":  u.Location.Latitude,
			"longitude": u.Location.Longitude,
		}
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode user: %v", err)
	}
	return st, nil
}

func fromStruct(st *structpb.Struct) *User {
	f := st.GetFields()
	u := &User{
		ID:     f["id"].GetStringValue(),
		Email:  f["email"].GetStringValue(),
		Name:   f["name"].GetStringValue(),
		Role:   Role(f["role"].GetStringValue()),
		Active: f["active"].GetBoolValue(),
	}
	if t, err := time.Parse(time.RFC3339Nano, f["createdAt"].GetStringValue()); err == nil {
		u.CreatedAt = t
	}
	if loc := f["location"].GetStructValue(); loc != nil {
		lf := loc.GetFields()
		u.Location = &Location{
			Label:     lf["label"].GetStringValue(),
			Latitude:  lf["latitude"].GetNumberValue(),
			Longitude: lf["longitude"].GetNumberValue(),
		}
	}
	return u
}

// IdentityClient is a Lookup backed by user-service.
type IdentityClient struct {
	conn *grpc.ClientConn
}

func DialIdentity(addr string) (*IdentityClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial user-service: %w", err)
	}
	return &IdentityClient{conn: conn}, nil
}

func NewIdentityClient(conn *grpc.ClientConn) *IdentityClient {
	return &IdentityClient{conn: conn}
}

func clientError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, status.Convert(err).Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", apperr.ErrForbidden, status.Convert(err).Message())
	default:
		return fmt.Errorf("user-service: %w", err)
	}
}

func (c *IdentityClient) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, "/"+identityServiceName+"/GetUser", wrapperspb.String(id), out, grpc.WaitForReady(true))
	if err != nil {
		return nil, clientError(err)
	}
	return fromStruct(out), nil
}

func (c *IdentityClient) SetRole(ctx context.Context, id string, role Role) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{"id": id, "role": string(role)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+identityServiceName+"/SetRole", in, out, grpc.WaitForReady(true)); err != nil {
		return nil, clientError(err)
	}
	return fromStruct(out), nil
}

func (c *IdentityClient) Close() error { return c.conn.Close() }
