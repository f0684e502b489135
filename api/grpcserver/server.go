package grpcserver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"seqdb/api/wire"
	"seqdb/domain/sequence"
	"seqdb/service"
)

// Server adapts the sequence Engine to gRPC.
type Server struct {
	engine *service.Engine
	log    logrus.FieldLogger
}

var _ SequenceServiceServer = (*Server)(nil)

func NewServer(engine *service.Engine, log logrus.FieldLogger) *Server {
	return &Server{
		engine: engine,
		log:    log.WithField("component", "grpc"),
	}
}

// NewGRPCServer returns a grpc.Server with the sequence service registered,
// the wire codec forced and request logging installed.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.ChainUnaryInterceptor(s.logRequests),
	}, opts...)
	g := grpc.NewServer(opts...)
	RegisterSequenceServiceServer(g, s)
	return g
}

// -------------------- Sessions --------------------

func (s *Server) OpenSession(
	ctx context.Context,
	req *wire.OpenSessionRequest,
) (*wire.OpenSessionResponse, error) {
	sess := s.engine.OpenSession(req.ScopeID)
	return &wire.OpenSessionResponse{Session: sess.Namespace}, nil
}

func (s *Server) CloseSession(
	ctx context.Context,
	req *wire.SessionRequest,
) (*wire.Empty, error) {
	if err := s.engine.CloseSession(req.Session); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

// -------------------- Commands --------------------

func (s *Server) CreateSequence(
	ctx context.Context,
	req *wire.CreateSequenceRequest,
) (*wire.CreateSequenceResponse, error) {
	id, err := s.engine.CreateSequence(ctx, req.Session, req.Name, sequence.Options{
		Increment: req.Increment,
		MaxValue:  req.MaxValue,
		MinValue:  req.MinValue,
		Start:     req.Start,
		Cycle:     req.Cycle,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.CreateSequenceResponse{ID: id}, nil
}

func (s *Server) DropSequence(
	ctx context.Context,
	req *wire.NameRequest,
) (*wire.Empty, error) {
	if err := s.engine.DropSequence(ctx, req.Session, req.Name); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *Server) RenameSequence(
	ctx context.Context,
	req *wire.RenameSequenceRequest,
) (*wire.Empty, error) {
	if err := s.engine.RenameSequence(ctx, req.Session, req.Name, req.NewName); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *Server) NextVal(
	ctx context.Context,
	req *wire.NameRequest,
) (*wire.ValueResponse, error) {
	v, err := s.engine.NextValue(ctx, req.Session, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.ValueResponse{Value: v}, nil
}

func (s *Server) SetVal(
	ctx context.Context,
	req *wire.SetValRequest,
) (*wire.Empty, error) {
	if err := s.engine.SetValue(ctx, req.Session, req.Name, req.Value); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

// -------------------- Queries --------------------

func (s *Server) CurrVal(
	ctx context.Context,
	req *wire.NameRequest,
) (*wire.ValueResponse, error) {
	v, err := s.engine.CurrentValue(req.Session, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.ValueResponse{Value: v}, nil
}

func (s *Server) ListSequences(
	ctx context.Context,
	req *wire.SessionRequest,
) (*wire.ListSequencesResponse, error) {
	rows, err := s.engine.ListSequences(req.Session)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &wire.ListSequencesResponse{Sequences: make([]*wire.SequenceInfo, 0, len(rows))}
	for _, r := range rows {
		resp.Sequences = append(resp.Sequences, toInfo(r))
	}
	return resp, nil
}

func (s *Server) DescribeSequence(
	ctx context.Context,
	req *wire.NameRequest,
) (*wire.SequenceInfo, error) {
	row, err := s.engine.Describe(req.Session, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return toInfo(row), nil
}

func (s *Server) ListSequenceNames(
	ctx context.Context,
	req *wire.SessionRequest,
) (*wire.NamesResponse, error) {
	names, err := s.engine.SequenceNames(req.Session)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.NamesResponse{Names: names}, nil
}

// -------------------- Interceptors --------------------

func (s *Server) logRequests(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := s.log.WithFields(logrus.Fields{
		"method": info.FullMethod,
		"code":   status.Code(err).String(),
		"took":   time.Since(start),
	})
	if status.Code(err) == codes.Internal {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug("request")
	}
	return resp, err
}

// -------------------- Converters --------------------

func toInfo(r sequence.Row) *wire.SequenceInfo {
	return &wire.SequenceInfo{
		ID:        r.ID,
		Name:      r.Name,
		Increment: r.Increment,
		MaxValue:  r.MaxValue,
		MinValue:  r.MinValue,
		Start:     r.Start,
		Cycle:     r.Cycle,
		Current:   r.Current,
	}
}

// toStatus maps engine error kinds to gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, sequence.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		code = codes.NotFound
	case errors.Is(err, sequence.ErrDuplicateName):
		code = codes.AlreadyExists
	case errors.Is(err, sequence.ErrInvalidDefinition):
		code = codes.InvalidArgument
	case errors.Is(err, sequence.ErrLimitExceeded):
		code = codes.OutOfRange
	case errors.Is(err, sequence.ErrCurrValUndefined):
		code = codes.FailedPrecondition
	case errors.Is(err, service.ErrCommitGaveUp):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
