package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/blograg"
	"github.com/flarexio/blograg/vector"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id any, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(id),
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

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `BlogRAG answers questions from the posts of a technical blog.

Available tools:
- search_blogs: find the posts closest to a query
- ask_blog: answer a question in Markdown, grounded on the closest posts`

const (
	ToolSearchBlogs = "search_blogs"
	ToolAskBlog     = "ask_blog"
)

func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolSearchBlogs,
			mcp.WithDescription("Find the blog posts most similar to a query, best match first."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Natural language search query"),
			),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Maximum number of posts, at most %d", blograg.MaxSearchLimit)),
			),
		),
		mcp.NewTool(ToolAskBlog,
			mcp.WithDescription("Answer a question using the blog posts as the only source."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The reader's question"),
			),
		),
	}
}

func MakeEndpoints(svc blograg.Service) map[mcp.MCPMethod]MCPEndpoint {
	return map[mcp.MCPMethod]MCPEndpoint{
		mcp.MethodInitialize: InitializeEndpoint(svc),
		mcp.MethodPing:       PingEndpoint(svc),
		mcp.MethodToolsList:  ListToolsEndpoint(svc),
		mcp.MethodToolsCall:  CallToolEndpoint(svc),
	}
}

func InitializeEndpoint(svc blograg.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "blograg",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc blograg.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

func ListToolsEndpoint(svc blograg.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

type toolArguments struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func CallToolEndpoint(svc blograg.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		var args toolArguments
		if params.Arguments != nil {
			data, err := json.Marshal(params.Arguments)
			if err != nil {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}

			if err := json.Unmarshal(data, &args); err != nil {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}
		}

		var (
			result *mcp.CallToolResult
			err    error
		)

		switch params.Name {
		case ToolSearchBlogs:
			result, err = searchBlogs(ctx, svc, args)
		case ToolAskBlog:
			result, err = askBlog(ctx, svc, args)
		default:
			return errorResponse(req.ID, mcp.METHOD_NOT_FOUND, "tool not found: "+params.Name)
		}

		if err != nil {
			if errors.Is(err, blograg.ErrValidation) {
				return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
			}

			// Upstream failures are reported to the model as a tool error.
			result = mcp.NewToolResultError(err.Error())
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func searchBlogs(ctx context.Context, svc blograg.Service, args toolArguments) (*mcp.CallToolResult, error) {
	docs, err := svc.FindSimilar(ctx, args.Query, args.Limit)
	if err != nil {
		return nil, err
	}

	if docs == nil {
		docs = []vector.Document{}
	}

	data, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(string(data)), nil
}

func askBlog(ctx context.Context, svc blograg.Service, args toolArguments) (*mcp.CallToolResult, error) {
	resp, err := svc.GenerateAIResponse(ctx, args.Query)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(resp.Answer)

	if len(resp.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, doc := range resp.Sources {
			fmt.Fprintf(&sb, "- %s", doc.Title)
			if doc.URL != "" {
				fmt.Fprintf(&sb, " (%s)", doc.URL)
			}
			sb.WriteString("\n")
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
