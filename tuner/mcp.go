package tuner

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/zapper/kit"
)

// RegisterMCP registers the tune operations on an MCP server, so an LLM
// operator can tune channels and inspect the engine the same way the HTTP
// admin does.
func (a *Admin) RegisterMCP(srv *mcp.Server) {
	a.registerTuneTool(srv)
	a.registerClearCachesTool(srv)
	a.registerDiscoverTool(srv)
	a.registerDirectURLTool(srv)
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

type channelReq struct {
	Channel string `json:"channel"`
}

func decodeChannelReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r channelReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (a *Admin) registerTuneTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zapper_tune",
		Description: "Tune a channel: locate it in the site's guide UI and activate playback. Returns the tune outcome with a failure reason when unsuccessful.",
		InputSchema: inputSchema(map[string]any{
			"channel": map[string]any{"type": "string", "description": "Channel name or dial number from the lineup"},
		}, []string{"channel"}),
	}

	endpoint := kit.Logging("zapper_tune", a.log)(func(ctx context.Context, req any) (any, error) {
		r := req.(*channelReq)
		return a.Tune(ctx, r.Channel)
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeChannelReq)
}

func (a *Admin) registerClearCachesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zapper_clear_caches",
		Description: "Drop every session cache (guide row positions, discovered watch URLs). Use after the browser restarted or a site shipped a new guide layout.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := kit.Logging("zapper_clear_caches", a.log)(func(_ context.Context, _ any) (any, error) {
		a.ClearCaches()
		return map[string]string{"status": "ok"}, nil
	})

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (a *Admin) registerDiscoverTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zapper_discover",
		Description: "Walk the full guide of a channel's site and return every discoverable channel name. Diagnostic: shows the exact names to use in lineup entries.",
		InputSchema: inputSchema(map[string]any{
			"channel": map[string]any{"type": "string", "description": "Any lineup channel on the site to enumerate"},
		}, []string{"channel"}),
	}

	endpoint := kit.Logging("zapper_discover", a.log)(func(ctx context.Context, req any) (any, error) {
		r := req.(*channelReq)
		names, err := a.Discover(ctx, r.Channel)
		if err != nil {
			return nil, err
		}
		return map[string]any{"channel": r.Channel, "channels": names}, nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decodeChannelReq)
}

func (a *Admin) registerDirectURLTool(srv *mcp.Server) {
	type req struct {
		Channel    string `json:"channel"`
		Invalidate bool   `json:"invalidate"`
	}

	tool := &mcp.Tool{
		Name:        "zapper_direct_url",
		Description: "Get the cached skip-ahead watch URL for a channel, or invalidate it after observing it no longer plays.",
		InputSchema: inputSchema(map[string]any{
			"channel":    map[string]any{"type": "string", "description": "Channel name or dial number from the lineup"},
			"invalidate": map[string]any{"type": "boolean", "description": "Drop the cached URL instead of returning it"},
		}, []string{"channel"}),
	}

	endpoint := kit.Logging("zapper_direct_url", a.log)(func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Invalidate {
			if err := a.InvalidateDirectURL(p.Channel); err != nil {
				return nil, err
			}
			return map[string]string{"status": "ok", "channel": p.Channel}, nil
		}
		return a.DirectURL(ctx, p.Channel)
	})

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
