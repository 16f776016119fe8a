package mcp

import "github.com/mark3labs/mcp-go/mcp"

var tokenToolDef = mcp.NewTool("shipment_token",
	mcp.WithDescription("Report whether a bearer token has been observed, masked by default. "+
		"Shows when and where it was captured and, for JWTs, the unverified subject and expiry."),
	mcp.WithBoolean("reveal", mcp.Description("Include the raw token in the result")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cachedToolDef = mcp.NewTool("shipment_cached",
	mcp.WithDescription("Return the shipment last fetched for a browser tab, or every cached shipment when tab_id is omitted."),
	mcp.WithNumber("tab_id", mcp.Description("Browser tab id (0 is valid)")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var fetchToolDef = mcp.NewTool("shipment_fetch",
	mcp.WithDescription("Fetch a shipment with the captured token. With tab_id, the response replaces that tab's cached shipment."),
	mcp.WithString("shipment_id", mcp.Required(), mcp.Description("Numeric shipment id")),
	mcp.WithNumber("tab_id", mcp.Description("Browser tab whose cache entry receives the response")),
	mcp.WithArray("query_types", mcp.Description("Detail sections to request (default: general, permissions, groups, commissions, bids, topCarriers)"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("event", mcp.Description("Event tag sent with the request (default: join)")),
	mcp.WithBoolean("bust", mcp.Description("Add a cache-busting timestamp to the request")),
)

var listToolDef = mcp.NewTool("shipment_list",
	mcp.WithDescription("List open shipments sharing a custom id. Give custom_id directly, or tab_id to use the custom id of that tab's cached shipment."),
	mcp.WithString("custom_id", mcp.Description("Custom id to look up")),
	mcp.WithNumber("tab_id", mcp.Description("Tab whose cached shipment supplies the custom id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var summaryToolDef = mcp.NewTool("shipment_summary",
	mcp.WithDescription("Summarize a tab's cached shipment: ship locations, weight, commodity, temperature, services and rate, plus a markdown rendering."),
	mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Browser tab id")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var emailToolDef = mcp.NewTool("shipment_email",
	mcp.WithDescription("Compose the email draft for a tab's cached shipment. Fields: shipLocations, commodity, weight, weightUnit, "+
		"temperature, temperatureUnit, services, rate. Units are dropped whenever their value is excluded."),
	mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Browser tab id")),
	mcp.WithArray("only", mcp.Description("Include just these fields"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithArray("exclude", mcp.Description("Leave these fields out"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("shipment_export",
	mcp.WithDescription("Save a tab's cached shipment as <shipmentId>.json, or with list=true its related shipment list as "+
		"shipment-list-<customId>-<ms>.json, in the exports directory."),
	mcp.WithNumber("tab_id", mcp.Required(), mcp.Description("Browser tab id")),
	mcp.WithBoolean("list", mcp.Description("Export the shipment list for the cached shipment's custom id instead")),
	mcp.WithString("path", mcp.Description("Output path directly in the exports dir or an allowed path, named <shipmentId>.json (optionally prefixed) or shipment-list-<name>.json")),
)
