package logstream

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrStreamClosed is returned by Stream.Recv once the server ends the stream.
var ErrStreamClosed = errors.New("log stream closed")

// Client consumes a log stream server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the log stream server at target. Extra options are
// appended after the defaults, so callers can override the transport.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)

	//nolint:staticcheck // Dial keeps passthrough target resolution.
	conn, err := grpc.Dial(target, dialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "dial log stream")
	}
	return &Client{conn: conn}, nil
}

// Stream is an open subscription.
type Stream struct {
	stream grpc.ClientStream
}

// Subscribe opens a stream of the events matching filter. The stream ends
// when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, filter Filter) (*Stream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return nil, errors.Wrap(err, "open stream")
	}
	if err := stream.SendMsg(&SubscribeRequest{Filter: filter}); err != nil {
		return nil, errors.Wrap(err, "send subscribe request")
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "close send")
	}
	return &Stream{stream: stream}, nil
}

// Recv blocks until the next event arrives.
func (s *Stream) Recv() (*Event, error) {
	ev := new(Event)
	if err := s.stream.RecvMsg(ev); err != nil {
		if err == io.EOF {
			return nil, ErrStreamClosed
		}
		return nil, err
	}
	return ev, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
