package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewHTTPHandler serves s over Streamable HTTP, for mounting at /mcp.
// Stateless mode skips session tracking, which suits load-balanced replicas
// that cannot pin a client to one process.
func NewHTTPHandler(s *Server, stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.MCPServer()
	}, &mcp.StreamableHTTPOptions{
		Stateless: stateless,
	})
}
