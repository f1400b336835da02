// CLAUDE:SUMMARY Registers chartfill MCP tools — plan building, latest map, readiness lookup.
package agent

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chartfill/kit"
)

// RegisterMCP registers the chartfill tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerPlanTool(srv)
	s.registerLatestMapTool(srv)
	s.registerReadinessTool(srv)
}

// instrument assigns each tool call a request id and logs failures with
// their transport, mirroring the HTTP middleware.
func (s *Service) instrument(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ctx = kit.WithRequestID(ctx, newRequestID())
			resp, err := next(ctx, req)
			if err != nil {
				s.logger.Warn("tool call failed",
					"tool", tool,
					"transport", kit.GetTransport(ctx),
					"request_id", kit.GetRequestID(ctx),
					"error", err)
			}
			return resp, err
		}
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- plan ---

type planToolRequest struct {
	URL     string `json:"url,omitempty"`
	Context string `json:"context,omitempty"`
	Note    string `json:"note,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

func (s *Service) registerPlanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chartfill_plan",
		Description: "Build a fill plan for the latest mapped form. Returns ordered steps with locators and values.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL override"},
			"context": map[string]any{"type": "string", "description": "Additional visit context text"},
			"note":    map[string]any{"type": "string", "description": "Pre-written note; suppresses generation"},
			"mode":    map[string]any{"type": "string", "description": "Plan mode (default: demo)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*planToolRequest)
		return s.Plan(ctx, PlanRequest{
			URL:     r.URL,
			Context: r.Context,
			Note:    r.Note,
			Mode:    r.Mode,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r planToolRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.instrument(tool.Name))(endpoint), decode)
}

// --- latest map ---

type latestMapRequest struct{}

func (s *Service) registerLatestMapTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chartfill_latest_map",
		Description: "Return the most recently ingested form map: fields, labels, roles, locators, surface fingerprint.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		m := s.Latest()
		if m == nil {
			return map[string]any{"ok": false, "error": "no map ingested yet"}, nil
		}
		return m, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &latestMapRequest{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.instrument(tool.Name))(endpoint), decode)
}

// --- readiness ---

type readinessToolRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (s *Service) registerReadinessTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chartfill_readiness",
		Description: "Return the readiness profile for a doctor: events, surfaces, coverage, autopilot gate.",
		InputSchema: inputSchema(map[string]any{
			"doctor_id": map[string]any{"type": "string", "description": "Doctor identifier"},
		}, []string{"doctor_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readinessToolRequest)
		return s.Readiness(ctx, r.DoctorID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r readinessToolRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.instrument(tool.Name))(endpoint), decode)
}
