package logstream

import (
	"encoding/json"
	"net"
	"time"

	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

const (
	serviceName      = "stratus.logstream.LogStream"
	subscribeMethod  = "/" + serviceName + "/Subscribe"
	codecName        = "json"
	defaultKeepalive = 30 * time.Second
)

// SubscribeRequest is the first and only message a client sends.
type SubscribeRequest struct {
	Filter     Filter `json:"filter"`
	BufferSize int    `json:"bufferSize,omitempty"`
}

// jsonCodec marshals stream messages as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// logStreamServer is the service implementation registered on the gRPC
// server.
type logStreamServer interface {
	subscribe(req *SubscribeRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*logStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "logstream",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(logStreamServer).subscribe(req, stream)
}

// ServerConfig holds log stream server settings.
type ServerConfig struct {
	// MaxMessageSize bounds sent and received messages in bytes.
	MaxMessageSize int

	// KeepaliveTime is the interval of server keepalive pings.
	KeepaliveTime time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxMessageSize: 16 * 1024 * 1024,
		KeepaliveTime:  defaultKeepalive,
	}
}

// Server serves the hub over gRPC.
type Server struct {
	hub  *Hub
	grpc *grpc.Server
	log  *zap.Logger
}

// NewServer creates a server streaming the events of hub.
func NewServer(hub *Hub, config ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		hub: hub,
		log: logging.OrNop(logger),
		grpc: grpc.NewServer(
			grpc.ForceServerCodec(jsonCodec{}),
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: config.KeepaliveTime}),
		),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("log stream listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "serve log stream")
	}
	return nil
}

// Stop closes every open stream and stops the server.
func (s *Server) Stop() {
	s.grpc.Stop()
}

func (s *Server) subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	sub := s.hub.Subscribe(req.Filter, req.BufferSize)
	defer sub.Close()
	s.log.Debug("log stream client subscribed",
		zap.Int("addresses", len(req.Filter.Addresses)), zap.Strings("endpoints", req.Filter.Endpoints))

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return status.Error(codes.Unavailable, "log stream closed")
			}
			if err := stream.SendMsg(ev); err != nil {
				return err
			}
		}
	}
}
