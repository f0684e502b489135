package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"seqdb/api/wire"
	"seqdb/infra/catalog"
	"seqdb/infra/txn"
	"seqdb/service"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	log, _ := test.NewNullLogger()
	mgr := txn.NewManager(log)
	store, err := catalog.Open(catalog.Config{Dir: "db", FS: vfs.NewMem()}, mgr, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := service.New(service.Config{Retry: service.DefaultRetryPolicy()}, mgr, store, nil, log)
	require.NoError(t, engine.Recover(store))

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewServer(engine, log))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, status.Code(err), err.Error())
}

func TestServer_SequenceLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	sess, err := c.OpenSession(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, sess)

	id, err := c.CreateSequence(ctx, &wire.CreateSequenceRequest{
		Session:   sess,
		Name:      "orders",
		Increment: -5,
		MinValue:  -20,
		MaxValue:  0,
		Start:     0,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = c.CurrVal(ctx, sess, "orders")
	requireCode(t, err, codes.FailedPrecondition)

	for _, want := range []int64{0, -5, -10, -15} {
		v, err := c.NextVal(ctx, sess, "orders")
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err = c.NextVal(ctx, sess, "orders")
	requireCode(t, err, codes.OutOfRange)

	// A failed nextval leaves currval undefined.
	_, err = c.CurrVal(ctx, sess, "orders")
	requireCode(t, err, codes.FailedPrecondition)

	require.NoError(t, c.SetVal(ctx, sess, "orders", -10))
	v, err := c.NextVal(ctx, sess, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), v)

	require.NoError(t, c.RenameSequence(ctx, sess, "orders", "invoices"))
	_, err = c.NextVal(ctx, sess, "orders")
	requireCode(t, err, codes.NotFound)

	list, err := c.ListSequences(ctx, sess)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "invoices", list[0].Name)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, int64(-5), list[0].Increment)
	assert.Equal(t, int64(-15), list[0].Current)

	info, err := c.DescribeSequence(ctx, sess, "invoices")
	require.NoError(t, err)
	assert.Equal(t, list[0], info)
	_, err = c.DescribeSequence(ctx, sess, "orders")
	requireCode(t, err, codes.NotFound)

	require.NoError(t, c.DropSequence(ctx, sess, "invoices"))
	list, err = c.ListSequences(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, c.CloseSession(ctx, sess))
	_, err = c.ListSequences(ctx, sess)
	requireCode(t, err, codes.NotFound)
}

func TestServer_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	sess, err := c.OpenSession(ctx, 7)
	require.NoError(t, err)

	_, err = c.CreateSequence(ctx, &wire.CreateSequenceRequest{Session: sess, Name: "bad", MinValue: 1, MaxValue: 10})
	requireCode(t, err, codes.InvalidArgument)

	req := &wire.CreateSequenceRequest{Session: sess, Name: "s", Increment: 1, MinValue: 1, MaxValue: 10, Start: 1}
	_, err = c.CreateSequence(ctx, req)
	require.NoError(t, err)
	_, err = c.CreateSequence(ctx, req)
	requireCode(t, err, codes.AlreadyExists)

	err = c.SetVal(ctx, sess, "s", 11)
	requireCode(t, err, codes.OutOfRange)

	err = c.DropSequence(ctx, sess, "missing")
	requireCode(t, err, codes.NotFound)

	err = c.CloseSession(ctx, "no-such-session")
	requireCode(t, err, codes.NotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.NextVal(cancelled, sess, "s")
	requireCode(t, err, codes.Canceled)
}

func TestServer_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	a, err := c.OpenSession(ctx, 1)
	require.NoError(t, err)
	b, err := c.OpenSession(ctx, 2)
	require.NoError(t, err)

	req := &wire.CreateSequenceRequest{Session: a, Name: "s", Increment: 1, MinValue: 1, MaxValue: 100, Start: 1}
	_, err = c.CreateSequence(ctx, req)
	require.NoError(t, err)

	_, err = c.NextVal(ctx, b, "s")
	requireCode(t, err, codes.NotFound)

	list, err := c.ListSequences(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, name := range []string{"c", "b"} {
		req := &wire.CreateSequenceRequest{Session: a, Name: name, Increment: 1, MinValue: 1, MaxValue: 100, Start: 1}
		_, err = c.CreateSequence(ctx, req)
		require.NoError(t, err)
	}
	names, err := c.ListSequenceNames(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "s"}, names)
	names, err = c.ListSequenceNames(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, names)
}
