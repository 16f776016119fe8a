package mcp

import (
	"net/http"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"shipment_token": {
		def:     tokenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToken },
	},
	"shipment_cached": {
		def:     cachedToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCached },
	},
	"shipment_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"shipment_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"shipment_summary": {
		def:     summaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSummary },
	},
	"shipment_email": {
		def:     emailToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEmail },
	},
	"shipment_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the shipment tools registered.
// Tools listed in the handlers' DisabledTools config are skipped.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"shiplens",
		version,
		server.WithToolCapabilities(true),
	)

	for _, name := range enabledTools(h.cfg.DisabledTools) {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// enabledTools returns the registered tool names not listed in disabled, sorted.
func enabledTools(disabled []string) []string {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}
	names := make([]string, 0, len(toolRegistry))
	for _, name := range AllToolNames() {
		if !skip[name] {
			names = append(names, name)
		}
	}
	return names
}

// HTTPHandler serves s over the streamable HTTP transport, for mounting on
// the daemon's mux.
func HTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}
