package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"

	mcpE "github.com/flarexio/blograg/mcp"
)

func rpcError(c *gin.Context, status int, id mcp.RequestId, code int, err error) {
	c.Error(err)
	c.Abort()

	resp := mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: err.Error(),
		},
	}

	c.JSON(status, &resp)
}

// MCPStreamableHandler answers single JSON-RPC requests of the MCP
// streamable HTTP transport.
func MCPStreamableHandler(endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mcpE.JSONRPCRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			rpcError(c, http.StatusBadRequest, req.ID, mcp.PARSE_ERROR, err)
			return
		}

		// Notifications carry no ID and expect no result.
		if req.ID.IsNil() {
			c.Status(http.StatusAccepted)
			return
		}

		endpoint, ok := endpoints[req.Method]
		if !ok {
			err := errors.New("method not found: " + string(req.Method))
			rpcError(c, http.StatusNotFound, req.ID, mcp.METHOD_NOT_FOUND, err)
			return
		}

		ctx := c.Request.Context()
		resp := endpoint(ctx, req)

		c.JSON(http.StatusOK, &resp)
	}
}
