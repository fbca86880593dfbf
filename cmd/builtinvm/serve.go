package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortiblox/stratus-builtins/pkg/logstream"
	"github.com/fortiblox/stratus-builtins/pkg/scenario"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var Serve = cli.Command{
	Action: serve,
	Name:   "serve",
	Usage:  "executes transactions read from stdin and streams their logs over gRPC",
	Description: `Every input line is a JSON transaction:
  {"from":"address:alice","to":"address:alice","function":"DCDTNFTAddURI","arguments":["str:TOKEN-abcdef","5","str:https://a"]}
The result of each transaction is written to stdout as one JSON line. The
server keeps running after stdin closes until it receives SIGINT or SIGTERM.`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "listen", Usage: "log stream listen address, overrides the configuration"},
	},
}

func serve(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	addr := n.config.LogStream.ListenAddr
	if ctx.IsSet("listen") {
		addr = ctx.String("listen")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	server := logstream.NewServer(n.hub, n.config.LogStreamServerConfig(), n.log)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := executeStream(runCtx, n, os.Stdin, ctx.App.Writer); err != nil {
			n.log.Error("transaction input failed", zap.Error(err))
		}
	}()

	var runErr error
	select {
	case <-runCtx.Done():
		n.log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			runErr = errors.Wrap(err, "log stream server")
		}
	}

	// The stores are closed on return; let the transaction in flight finish.
	stop()
	<-streamDone
	server.Stop()
	return runErr
}

// executeStream executes the JSON transactions read from r, one per line,
// and writes one result per line to w. It returns when r is exhausted or
// ctx is cancelled, never in the middle of a transaction. A read blocked on r
// is left behind on cancellation.
func executeStream(ctx context.Context, n *node, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- append([]byte(nil), scanner.Bytes()...):
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	for {
		var line []byte
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-readErr
			}
			line = l
		}
		if ctx.Err() != nil {
			return nil
		}
		if len(line) == 0 {
			continue
		}
		var spec scenario.TxSpec
		if err := json.Unmarshal(line, &spec); err != nil {
			n.log.Warn("skipping malformed transaction", zap.Error(err))
			continue
		}
		in, err := spec.Input()
		if err != nil {
			n.log.Warn("skipping invalid transaction", zap.Error(err))
			continue
		}
		result, err := n.exec.Execute(in)
		if err != nil {
			return err
		}
		view := newResultView(result)
		view.Sequence = n.db.GetSequence()
		view.TxHash = in.Hash().Hex()
		if err := enc.Encode(view); err != nil {
			return err
		}
	}
}
