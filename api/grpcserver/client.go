package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"seqdb/api/wire"
)

// Client calls SequenceService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp wire.Message, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.ForceCodec(wire.Codec{})}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), req, resp, opts...)
}

// -------------------- Sessions --------------------

func (c *Client) OpenSession(ctx context.Context, scopeID uint32, opts ...grpc.CallOption) (string, error) {
	resp := &wire.OpenSessionResponse{}
	if err := c.invoke(ctx, "OpenSession", &wire.OpenSessionRequest{ScopeID: scopeID}, resp, opts...); err != nil {
		return "", err
	}
	return resp.Session, nil
}

func (c *Client) CloseSession(ctx context.Context, session string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "CloseSession", &wire.SessionRequest{Session: session}, &wire.Empty{}, opts...)
}

// -------------------- Commands --------------------

func (c *Client) CreateSequence(ctx context.Context, req *wire.CreateSequenceRequest, opts ...grpc.CallOption) (uint32, error) {
	resp := &wire.CreateSequenceResponse{}
	if err := c.invoke(ctx, "CreateSequence", req, resp, opts...); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) DropSequence(ctx context.Context, session, name string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "DropSequence", &wire.NameRequest{Session: session, Name: name}, &wire.Empty{}, opts...)
}

func (c *Client) RenameSequence(ctx context.Context, session, name, newName string, opts ...grpc.CallOption) error {
	req := &wire.RenameSequenceRequest{Session: session, Name: name, NewName: newName}
	return c.invoke(ctx, "RenameSequence", req, &wire.Empty{}, opts...)
}

func (c *Client) NextVal(ctx context.Context, session, name string, opts ...grpc.CallOption) (int64, error) {
	resp := &wire.ValueResponse{}
	if err := c.invoke(ctx, "NextVal", &wire.NameRequest{Session: session, Name: name}, resp, opts...); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *Client) SetVal(ctx context.Context, session, name string, v int64, opts ...grpc.CallOption) error {
	req := &wire.SetValRequest{Session: session, Name: name, Value: v}
	return c.invoke(ctx, "SetVal", req, &wire.Empty{}, opts...)
}

// -------------------- Queries --------------------

func (c *Client) CurrVal(ctx context.Context, session, name string, opts ...grpc.CallOption) (int64, error) {
	resp := &wire.ValueResponse{}
	if err := c.invoke(ctx, "CurrVal", &wire.NameRequest{Session: session, Name: name}, resp, opts...); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *Client) ListSequences(ctx context.Context, session string, opts ...grpc.CallOption) ([]*wire.SequenceInfo, error) {
	resp := &wire.ListSequencesResponse{}
	if err := c.invoke(ctx, "ListSequences", &wire.SessionRequest{Session: session}, resp, opts...); err != nil {
		return nil, err
	}
	return resp.Sequences, nil
}

func (c *Client) DescribeSequence(ctx context.Context, session, name string, opts ...grpc.CallOption) (*wire.SequenceInfo, error) {
	resp := &wire.SequenceInfo{}
	if err := c.invoke(ctx, "DescribeSequence", &wire.NameRequest{Session: session, Name: name}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListSequenceNames(ctx context.Context, session string, opts ...grpc.CallOption) ([]string, error) {
	resp := &wire.NamesResponse{}
	if err := c.invoke(ctx, "ListSequenceNames", &wire.SessionRequest{Session: session}, resp, opts...); err != nil {
		return nil, err
	}
	return resp.Names, nil
}
