package lineup

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/zapper/kit"
)

// RegisterMCP registers the lineup administration tools on an MCP server.
func (a *Admin) RegisterMCP(srv *mcp.Server) {
	a.registerChannelsTool(srv)
	a.registerUpsertTool(srv)
	a.registerDeleteTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (a *Admin) registerChannelsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zapper_channels",
		Description: "List the channel lineup: every configured channel with its site, strategy, and enabled state.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return a.List(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (a *Admin) registerUpsertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zapper_channel_upsert",
		Description: "Create or update a lineup channel. Strategy must be one of: none, guideGrid, channelRail, imageTile, labelLink.",
		InputSchema: inputSchema(map[string]any{
			"name":            map[string]any{"type": "string", "description": "Channel name, the lineup key"},
			"number":          map[string]any{"type": "integer", "description": "Optional dial number"},
			"site":            map[string]any{"type": "string", "description": "Streaming site this channel lives on"},
			"strategy":        map[string]any{"type": "string", "description": "Resolution strategy"},
			"channel":         map[string]any{"type": "string", "description": "Strategy-specific identifier; defaults to name"},
			"guide_url":       map[string]any{"type": "string", "description": "Landing/guide page URL"},
			"reveal_selector": map[string]any{"type": "string", "description": "Selector that opens the guide"},
			"play_selector":   map[string]any{"type": "string", "description": "Selector of the play control"},
			"rail_selector":   map[string]any{"type": "string", "description": "Selector of the channel rail"},
			"discover_label":  map[string]any{"type": "string", "description": "Accessible label of the live-TV link"},
			"enabled":         map[string]any{"type": "boolean", "description": "Whether the channel is tunable"},
		}, []string{"name", "site", "strategy"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		e := req.(*Entry)
		if err := a.Upsert(ctx, *e); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "name": e.Name}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		e := Entry{Enabled: true}
		if err := json.Unmarshal(req.Params.Arguments, &e); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &e}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (a *Admin) registerDeleteTool(srv *mcp.Server) {
	type req struct {
		Name string `json:"name"`
	}

	tool := &mcp.Tool{
		Name:        "zapper_channel_delete",
		Description: "Remove a channel from the lineup.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Channel name to remove"},
		}, []string{"name"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if err := a.Delete(ctx, p.Name); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "name": p.Name}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
