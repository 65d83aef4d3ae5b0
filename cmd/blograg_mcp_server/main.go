package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/flarexio/blograg"

	mcpE "github.com/flarexio/blograg/mcp"
	natsT "github.com/flarexio/blograg/transport/nats"
)

const maxLineSize = 4 * 1024 * 1024

type StdioMCPServer interface {
	AddEndpoint(method mcp.MCPMethod, endpoint mcpE.MCPEndpoint) error
	Listen(ctx context.Context, r io.Reader, w io.Writer) error
}

func NewStdioMCPServer() StdioMCPServer {
	return &stdioMCPServer{
		endpoints: make(map[mcp.MCPMethod]mcpE.MCPEndpoint),
	}
}

type stdioMCPServer struct {
	endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint
}

// Listen serves newline-delimited JSON-RPC until r is exhausted or ctx is
// done. Replies are written in request order.
func (s *stdioMCPServer) Listen(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp, ok := s.handle(ctx, line)
		if !ok {
			continue
		}

		bs, err := json.Marshal(resp)
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "%s\n", bs); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func rpcError(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

// handle answers one JSON-RPC line. Notifications get no reply.
func (s *stdioMCPServer) handle(ctx context.Context, line []byte) (mcp.JSONRPCMessage, bool) {
	var req mcpE.JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return rpcError(req.ID, mcp.PARSE_ERROR, err.Error()), true
	}

	if req.ID.IsNil() {
		return nil, false
	}

	endpoint, ok := s.endpoints[req.Method]
	if !ok {
		return rpcError(req.ID, mcp.METHOD_NOT_FOUND, "method not found: "+string(req.Method)), true
	}

	return endpoint(ctx, req), true
}

func (srv *stdioMCPServer) AddEndpoint(method mcp.MCPMethod, endpoint mcpE.MCPEndpoint) error {
	_, ok := srv.endpoints[method]
	if ok {
		return errors.New("endpoint already exists")
	}

	srv.endpoints[method] = endpoint
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "blograg_mcp_server",
		Usage: "BlogRAG MCP Server over stdio, backed by the NATS transport",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Value:   nats.DefaultURL,
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "nats-creds",
				Usage:   "NATS user credentials file",
				Sources: cli.EnvVars("NATS_CREDS"),
			},
			&cli.StringFlag{
				Name:  "nats-topic",
				Usage: "NATS subject prefix of the BlogRAG service",
				Value: "blograg",
			},
			&cli.DurationFlag{
				Name:    "nats-timeout",
				Usage:   "Timeout of a single request to the BlogRAG service",
				Value:   natsT.DefaultRequestTimeout,
				Sources: cli.EnvVars("NATS_TIMEOUT"),
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []nats.Option{
		nats.Name("BlogRAG MCP Server"),
	}

	if creds := cmd.String("nats-creds"); creds != "" {
		opts = append(opts, nats.UserCredentials(creds))
	}

	nc, err := nats.Connect(cmd.String("nats"), opts...)
	if err != nil {
		return err
	}
	defer nc.Drain()

	endpoints := natsT.MakeEndpoints(nc, cmd.String("nats-topic"), cmd.Duration("nats-timeout"))

	var svc blograg.Service
	svc = blograg.ProxyMiddleware(endpoints)(svc)

	s := NewStdioMCPServer()
	for method, endpoint := range mcpE.MakeEndpoints(svc) {
		if err := s.AddEndpoint(method, endpoint); err != nil {
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx, os.Stdin, os.Stdout)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-quit:
		cancel()
		return nil
	case err := <-done:
		return err
	}
}
