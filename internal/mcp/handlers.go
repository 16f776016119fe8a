package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/ops"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	bg         *background.Background
	cfg        *config.Config
	exportsDir string
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(bg *background.Background, cfg *config.Config, exportsDir string) *Handlers {
	return &Handlers{bg: bg, cfg: cfg, exportsDir: exportsDir, now: time.Now}
}

// Request types for each tool

// TokenRequest represents the arguments for shipment_token.
type TokenRequest struct {
	Reveal bool `json:"reveal,omitempty"`
}

// CachedRequest represents the arguments for shipment_cached.
type CachedRequest struct {
	TabID *int64 `json:"tab_id,omitempty"`
}

// FetchRequest represents the arguments for shipment_fetch.
type FetchRequest struct {
	ShipmentID background.FlexString `json:"shipment_id"`
	TabID      *int64                `json:"tab_id,omitempty"`
	QueryTypes []string              `json:"query_types,omitempty"`
	Event      string                `json:"event,omitempty"`
	Bust       bool                  `json:"bust,omitempty"`
}

// ListRequest represents the arguments for shipment_list.
type ListRequest struct {
	CustomID background.FlexString `json:"custom_id,omitempty"`
	TabID    *int64                `json:"tab_id,omitempty"`
}

// TabRequest represents the arguments for shipment_summary.
type TabRequest struct {
	TabID *int64 `json:"tab_id"`
}

// EmailRequest represents the arguments for shipment_email.
type EmailRequest struct {
	TabID   *int64   `json:"tab_id"`
	Only    []string `json:"only,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ExportRequest represents the arguments for shipment_export.
type ExportRequest struct {
	TabID *int64 `json:"tab_id"`
	List  bool   `json:"list,omitempty"`
	Path  string `json:"path,omitempty"`
}

// Response types

// TokenResponse is the token info, plus the token itself when revealed.
type TokenResponse struct {
	observer.TokenInfo
	Token string `json:"token,omitempty"`
}

// ListResponse is a shipment list fetch result with the custom id used.
type ListResponse struct {
	CustomID string `json:"customId"`
	turvo.Result
}

// Handler implementations

// HandleToken handles the shipment_token tool call.
func (h *Handlers) HandleToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TokenRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	resp := TokenResponse{TokenInfo: h.bg.Observer().Info()}
	if input.Reveal {
		resp.Token, _ = h.bg.Observer().Token()
	}
	return successResult(resp)
}

// HandleCached handles the shipment_cached tool call.
func (h *Handlers) HandleCached(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CachedRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.TabID == nil {
		records, err := h.bg.Cache().List(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(map[string]any{"records": records, "count": len(records)})
	}

	rec, err := h.bg.RequireShipment(ctx, *input.TabID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(rec)
}

// HandleFetch handles the shipment_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	m := background.FetchShipmentRequest{
		ShipmentID: input.ShipmentID,
		QueryTypes: input.QueryTypes,
		Event:      input.Event,
		TabID:      input.TabID,
	}
	if input.Bust {
		m.BustTS = background.FlexString(fmt.Sprint(h.now().UnixMilli()))
	}

	result, err := h.bg.FetchShipment(ctx, m)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the shipment_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	customID := strings.TrimSpace(string(input.CustomID))
	switch {
	case customID != "":
		result, err := h.bg.FetchShipmentList(ctx, background.FetchShipmentListRequest{CustomID: input.CustomID})
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(ListResponse{CustomID: customID, Result: *result})

	case input.TabID != nil:
		customID, result, err := h.bg.ListForTab(ctx, *input.TabID)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(ListResponse{CustomID: customID, Result: *result})
	}
	return errorResult(errors.NewPrecondition("custom_id or tab_id is required", "custom_id", "tab_id")), nil
}

// HandleSummary handles the shipment_summary tool call.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TabRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.TabID == nil {
		return errorResult(errors.NewPrecondition("Missing tabId", "tab_id")), nil
	}

	rec, err := h.bg.RequireShipment(ctx, *input.TabID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.Summarize(rec.ShipmentID, rec.Data))
}

// HandleEmail handles the shipment_email tool call.
func (h *Handlers) HandleEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EmailRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.TabID == nil {
		return errorResult(errors.NewPrecondition("Missing tabId", "tab_id")), nil
	}

	rec, err := h.bg.RequireShipment(ctx, *input.TabID)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ComposeEmail(ops.Summarize(rec.ShipmentID, rec.Data).Fields, ops.EmailInput{
		Only:    input.Only,
		Exclude: input.Exclude,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the shipment_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.TabID == nil {
		return errorResult(errors.NewPrecondition("Missing tabId", "tab_id")), nil
	}

	if input.List {
		customID, result, err := h.bg.ListForTab(ctx, *input.TabID)
		if err != nil {
			return errorResult(err), nil
		}
		if !result.OK {
			return errorResult(errors.NewUpstream(fmt.Errorf("shipment list request returned status %d", result.Status))), nil
		}
		out, err := ops.ExportShipmentList(h.cfg, h.exportsDir, customID, result.Data, input.Path, h.now())
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(out)
	}

	rec, err := h.bg.RequireShipment(ctx, *input.TabID)
	if err != nil {
		return errorResult(err), nil
	}
	out, err := ops.ExportShipment(h.cfg, h.exportsDir, rec, input.Path)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if shipErr, ok := err.(*errors.ShipError); ok {
		errorObj := map[string]any{
			"code":    shipErr.Code,
			"message": shipErr.Message,
			"status":  shipErr.Status,
		}
		if shipErr.Code != errors.ErrInternal && shipErr.Details != nil {
			errorObj["details"] = shipErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
