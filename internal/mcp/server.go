package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ksred/revchain/internal/migration"
)

// Server wraps the MCP server with the migration runner
type Server struct {
	mcpServer *server.MCPServer
	handler   *Handler
	logger    zerolog.Logger
}

type toolFunc func(ctx context.Context, params json.RawMessage) (*ToolResponse, error)

// NewServer creates a new MCP server instance
func NewServer(runner *migration.Runner, logger zerolog.Logger) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	mcpServer := server.NewMCPServer(
		"revchain",
		"1.0.0",
		server.WithLogging(),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &Server{
		mcpServer: mcpServer,
		handler:   NewHandler(runner, logger),
		logger:    logger,
	}

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s, nil
}

// Serve runs the server over stdio until stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Debug().Msg("Starting MCP server ServeStdio")
	err := server.ServeStdio(s.mcpServer)
	if err != nil {
		s.logger.Error().Err(err).Msg("MCP server ServeStdio error")
	}
	return err
}

func targetProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func (s *Server) registerTools() {
	empty := mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "migration_status",
		Description: "Show the database's current schema revision, the head revision, and which revisions are applied or pending.",
		InputSchema: empty,
	}, s.toolHandler(s.handler.HandleStatus))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_revisions",
		Description: "List every known schema revision in order from oldest to newest, marking which are applied.",
		InputSchema: empty,
	}, s.toolHandler(s.handler.HandleListRevisions))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "migration_history",
		Description: "Show the most recent upgrades, downgrades and stamps recorded against this database, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries to return (default: 20)",
					"minimum":     1,
					"maximum":     maxHistoryLimit,
				},
			},
		},
	}, s.toolHandler(s.handler.HandleHistory))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "plan_migration",
		Description: "Preview the ordered steps an upgrade or downgrade would run, without changing the database. Use before upgrade or downgrade.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"direction": map[string]interface{}{
					"type":        "string",
					"description": "Direction of the migration",
					"enum":        []string{string(migration.Up), string(migration.Down)},
				},
				"target": targetProperty("Target revision: an id or unique prefix, head, base, or a relative form like -1 or head-2"),
			},
			Required: []string{"direction"},
		},
	}, s.toolHandler(s.handler.HandlePlan))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "upgrade",
		Description: "Apply schema revisions up to the target revision (head by default). Set sql to render the SQL without running it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"target": targetProperty("Target revision, head by default"),
				"sql": map[string]interface{}{
					"type":        "boolean",
					"description": "Render SQL instead of executing (default: false)",
				},
			},
		},
	}, s.toolHandler(s.handler.HandleUpgrade))

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "downgrade",
		Description: "Revert schema revisions down to the target revision. Destructive: dropped tables and columns lose their data.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"target": targetProperty("Target revision, for example -1 or base"),
				"sql": map[string]interface{}{
					"type":        "boolean",
					"description": "Render SQL instead of executing (default: false)",
				},
			},
			Required: []string{"target"},
		},
	}, s.toolHandler(s.handler.HandleDowngrade))

	s.logger.Info().Int("count", 6).Msg("Registered MCP tools")
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.Resource{
		URI:         "migration://status",
		Name:        "Migration Status",
		Description: "Current revision, head, and applied and pending revisions",
		MIMEType:    "application/json",
	}, s.statusResourceHandler)

	s.logger.Info().Int("count", 1).Msg("Registered MCP resources")
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.Prompt{
		Name:        "plan_rollback",
		Description: "Review what a downgrade to a target revision would undo before running it",
		Arguments: []mcp.PromptArgument{
			{
				Name:        "target",
				Description: "Revision to roll back to (default: -1)",
				Required:    false,
			},
		},
	}, s.planRollbackHandler)

	s.logger.Info().Int("count", 1).Msg("Registered MCP prompts")
}

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf(format, args...),
			},
		},
		IsError: true,
	}
}

// toolHandler adapts a Handler method to the mcp-go tool signature
func (s *Server) toolHandler(fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debug().Str("tool", request.Params.Name).Msg("Tool handler called")

		params, err := json.Marshal(request.GetArguments())
		if err != nil {
			return errorResult("Failed to parse arguments: %v", err), nil
		}

		response, err := fn(ctx, params)
		if err != nil {
			s.logger.Error().Err(err).Str("tool", request.Params.Name).Msg("Tool failed")
			return errorResult("Error: %v", err), nil
		}

		resultJSON, err := response.ToJSON()
		if err != nil {
			return errorResult("Failed to marshal result: %v", err), nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: string(resultJSON),
				},
			},
			IsError: !response.Success,
		}, nil
	}
}

func (s *Server) statusResourceHandler(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status, err := s.handler.runner.Status(ctx)
	if err != nil {
		return nil, err
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(statusJSON),
		},
	}, nil
}

func (s *Server) planRollbackHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	target := "-1"
	if t, ok := request.Params.Arguments["target"]; ok && t != "" {
		target = t
	}

	plan, err := s.handler.runner.Plan(ctx, migration.Down, target)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The database is at revision %s. Rolling back to %s would run these downgrades in order:\n",
		displayRevision(plan.From), displayRevision(plan.To))
	if plan.Empty() {
		b.WriteString("(none, the database is already at the target)\n")
	}
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, step.Revision, step.Message)
	}
	b.WriteString("\nExplain what data each step would destroy and whether the rollback is safe. Only call the downgrade tool after I confirm.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Rollback plan to %s", displayRevision(plan.To)),
		Messages: []mcp.PromptMessage{
			{
				Role: "user",
				Content: mcp.TextContent{
					Type: "text",
					Text: b.String(),
				},
			},
		},
	}, nil
}
