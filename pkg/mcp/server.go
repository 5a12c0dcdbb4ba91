package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stratagem/internal/counts"
	"github.com/rendis/stratagem/internal/dirty"
	"github.com/rendis/stratagem/internal/store"
	"github.com/rendis/stratagem/internal/transform"
	"github.com/rendis/stratagem/internal/validation"
	"github.com/rendis/stratagem/pkg/schema"
)

// CountService is the slice of the count service the tool surface needs.
type CountService interface {
	Counts() map[string]counts.Count
	ForceRefresh(ctx context.Context, st *schema.Strategy)
}

// StratagemServerDeps holds the dependencies for creating a StratagemServer.
type StratagemServerDeps struct {
	Store     store.Store
	Validator *validation.StrategyValidator
	Counts    CountService
	Tracker   *dirty.Tracker
	Filters   *transform.Registry
	// Live returns the current in-session graph, or nil when no streaming
	// session has produced one yet.
	Live   func() *schema.Strategy
	Logger *slog.Logger
}

// StratagemServer wraps an MCP server with strategy tool handlers.
type StratagemServer struct {
	store     store.Store
	validator *validation.StrategyValidator
	counts    CountService
	tracker   *dirty.Tracker
	filters   *transform.Registry
	live      func() *schema.Strategy
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStratagemServer creates a StratagemServer with all 8 tools registered.
func NewStratagemServer(deps StratagemServerDeps) *StratagemServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StratagemServer{
		store:     deps.Store,
		validator: deps.Validator,
		counts:    deps.Counts,
		tracker:   deps.Tracker,
		filters:   deps.Filters,
		live:      deps.Live,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"stratagem",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stratagem maintains a live search-strategy graph. Use stratagem.get to inspect a strategy, stratagem.validate to check it, stratagem.plan for its canonical execution plan, stratagem.counts for per-step result counts, stratagem.preview to run a step's filter against a sample record, stratagem.save to persist the live graph, stratagem.delete to remove a stored strategy, and stratagem.query to list stored strategies or read their event logs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StratagemServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StratagemServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 8 registered MCP tools as ServerTool entries.
func (s *StratagemServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: planTool(), Handler: s.handlePlan},
		{Tool: countsTool(), Handler: s.handleCounts},
		{Tool: previewTool(), Handler: s.handlePreview},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func getTool() mcp.Tool {
	return mcp.NewTool("stratagem.get",
		mcp.WithDescription("Fetch a strategy graph. Omit strategy_id to read the live in-session graph"),
		mcp.WithString("strategy_id", mcp.Description("ID of a stored strategy (default: live session graph)")),
		mcp.WithString("source", mcp.Description("Set to 'replay' to reconstruct the graph from the stream-event log")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("stratagem.validate",
		mcp.WithDescription("Run structural and expression validation on a strategy graph"),
		mcp.WithString("strategy_id", mcp.Description("ID of a stored strategy (default: live session graph)")),
	)
}

func planTool() mcp.Tool {
	return mcp.NewTool("stratagem.plan",
		mcp.WithDescription("Serialize a strategy into its canonical nested execution plan with content fingerprint"),
		mcp.WithString("strategy_id", mcp.Description("ID of a stored strategy (default: live session graph)")),
	)
}

func countsTool() mcp.Tool {
	return mcp.NewTool("stratagem.counts",
		mcp.WithDescription("Read per-step result counts, optionally forcing a refetch first"),
		mcp.WithString("strategy_id", mcp.Description("Strategy to refresh when refresh=true (default: live session graph)")),
		mcp.WithString("refresh", mcp.Description("Set to 'true' to force a refetch before reading")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("stratagem.preview",
		mcp.WithDescription("Run a step's filter expression against a sample record and report whether it matches"),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Step whose filter to apply")),
		mcp.WithString("strategy_id", mcp.Description("ID of a stored strategy (default: live session graph)")),
		mcp.WithObject("record", mcp.Required(), mcp.Description("Sample record to run the filter against")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("stratagem.save",
		mcp.WithDescription("Persist the live strategy graph and mark its baseline as saved"),
		mcp.WithString("name", mcp.Description("Display name for the strategy")),
		mcp.WithString("description", mcp.Description("Strategy description")),
		mcp.WithString("site_id", mcp.Description("Owning site ID")),
		mcp.WithObject("layout", mcp.Description("Canvas node positions keyed by step id, persisted alongside the strategy")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("stratagem.delete",
		mcp.WithDescription("Delete a stored strategy along with its saved baseline and canvas layout"),
		mcp.WithString("strategy_id", mcp.Required(), mcp.Description("Strategy to delete")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("stratagem.query",
		mcp.WithDescription("Query stored strategies or stream events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("strategies", "events"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (site_id, record_type, limit, strategy_id, since, event_type)")),
	)
}
