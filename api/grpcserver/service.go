package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"seqdb/api/wire"
)

const ServiceName = "seqdb.v1.SequenceService"

// SequenceServiceServer is the server side of the sequence API.
type SequenceServiceServer interface {
	OpenSession(context.Context, *wire.OpenSessionRequest) (*wire.OpenSessionResponse, error)
	CloseSession(context.Context, *wire.SessionRequest) (*wire.Empty, error)
	CreateSequence(context.Context, *wire.CreateSequenceRequest) (*wire.CreateSequenceResponse, error)
	DropSequence(context.Context, *wire.NameRequest) (*wire.Empty, error)
	RenameSequence(context.Context, *wire.RenameSequenceRequest) (*wire.Empty, error)
	NextVal(context.Context, *wire.NameRequest) (*wire.ValueResponse, error)
	CurrVal(context.Context, *wire.NameRequest) (*wire.ValueResponse, error)
	SetVal(context.Context, *wire.SetValRequest) (*wire.Empty, error)
	ListSequences(context.Context, *wire.SessionRequest) (*wire.ListSequencesResponse, error)
	DescribeSequence(context.Context, *wire.NameRequest) (*wire.SequenceInfo, error)
	ListSequenceNames(context.Context, *wire.SessionRequest) (*wire.NamesResponse, error)
}

// ServiceDesc describes SequenceService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SequenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("OpenSession", func() *wire.OpenSessionRequest { return &wire.OpenSessionRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.OpenSessionRequest) (any, error) {
				return s.OpenSession(ctx, r)
			}),
		unary("CloseSession", func() *wire.SessionRequest { return &wire.SessionRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.SessionRequest) (any, error) {
				return s.CloseSession(ctx, r)
			}),
		unary("CreateSequence", func() *wire.CreateSequenceRequest { return &wire.CreateSequenceRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.CreateSequenceRequest) (any, error) {
				return s.CreateSequence(ctx, r)
			}),
		unary("DropSequence", func() *wire.NameRequest { return &wire.NameRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.NameRequest) (any, error) {
				return s.DropSequence(ctx, r)
			}),
		unary("RenameSequence", func() *wire.RenameSequenceRequest { return &wire.RenameSequenceRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.RenameSequenceRequest) (any, error) {
				return s.RenameSequence(ctx, r)
			}),
		unary("NextVal", func() *wire.NameRequest { return &wire.NameRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.NameRequest) (any, error) {
				return s.NextVal(ctx, r)
			}),
		unary("CurrVal", func() *wire.NameRequest { return &wire.NameRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.NameRequest) (any, error) {
				return s.CurrVal(ctx, r)
			}),
		unary("SetVal", func() *wire.SetValRequest { return &wire.SetValRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.SetValRequest) (any, error) {
				return s.SetVal(ctx, r)
			}),
		unary("ListSequences", func() *wire.SessionRequest { return &wire.SessionRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.SessionRequest) (any, error) {
				return s.ListSequences(ctx, r)
			}),
		unary("DescribeSequence", func() *wire.NameRequest { return &wire.NameRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.NameRequest) (any, error) {
				return s.DescribeSequence(ctx, r)
			}),
		unary("ListSequenceNames", func() *wire.SessionRequest { return &wire.SessionRequest{} },
			func(s SequenceServiceServer, ctx context.Context, r *wire.SessionRequest) (any, error) {
				return s.ListSequenceNames(ctx, r)
			}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/seqdb/v1/sequence.proto",
}

// RegisterSequenceServiceServer registers srv on s.
func RegisterSequenceServiceServer(s grpc.ServiceRegistrar, srv SequenceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req wire.Message](
	method string,
	newReq func() Req,
	call func(SequenceServiceServer, context.Context, Req) (any, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(SequenceServiceServer)
			if ic == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			return ic(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(s, ctx, r.(Req))
			})
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}
