package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RunStarter launches evolution runs on behalf of MCP clients. The engine
// satisfies it; tests inject a stub.
type RunStarter interface {
	RunEvolution(ctx context.Context, workflowID string, input models.EvaluationInput) (*models.Run, error)
}

type Server struct {
	mcpServer *server.MCPServer
	store     storage.Store
	starter   RunStarter
}

// NewServer exposes the evolution engine over the MCP tool protocol, so
// agent hosts can launch and inspect runs as tools.
func NewServer(store storage.Store, starter RunStarter) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"evoflow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		store:   store,
		starter: starter,
	}
	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_run",
			mcp.WithDescription("Start an evolutionary optimization run for a goal"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The registered workflow to evolve")),
			mcp.WithString("goal", mcp.Required(), mcp.Description("What the evolved workflows should achieve")),
			mcp.WithString("input_name", mcp.Description("Named evaluation input to score candidates against")),
		),
		s.handleStartRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run_status",
			mcp.WithDescription("Get the status, spend and progress of a run"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to inspect")),
		),
		s.handleGetRunStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_best_genome",
			mcp.WithDescription("Get the best-scoring workflow configuration of a run"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run to inspect")),
		),
		s.handleGetBestGenome,
	)
}

func stringArg(request mcp.CallToolRequest, key string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, ok := stringArg(request, "workflow_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	goal, ok := stringArg(request, "goal")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: goal"), nil
	}

	input := models.EvaluationInput{Type: models.InputTypePromptOnly, Goal: goal}
	if name, ok := stringArg(request, "input_name"); ok {
		stored, err := s.store.GetEvaluationInput(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown evaluation input '%s': %v", name, err)), nil
		}
		input = stored
		input.Goal = goal
	}

	run, err := s.starter.RunEvolution(ctx, workflowID, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start run: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(run)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetRunStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, ok := stringArg(request, "run_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}

	run, err := s.store.GetRun(runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load run: %v", err)), nil
	}
	gens, err := s.store.ListGenerations(runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load generations: %v", err)), nil
	}

	status := map[string]interface{}{
		"run_id":           run.ID,
		"status":           run.Status,
		"effective_status": run.EffectiveStatus(time.Now()),
		"goal":             run.Goal,
		"total_cost_usd":   run.TotalCostUSD,
		"generations":      len(gens),
	}
	if n := len(gens); n > 0 {
		status["best_score"] = gens[n-1].BestScore
	}

	jsonBytes, _ := json.Marshal(status)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetBestGenome(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, ok := stringArg(request, "run_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}

	last, err := s.store.GetLastCompletedGeneration(runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load generations: %v", err)), nil
	}
	if last == nil {
		return mcp.NewToolResultError("Run has no completed generation yet"), nil
	}

	invocations, err := s.store.ListGenerationInvocations(last.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load invocations: %v", err)), nil
	}

	best := ""
	bestFitness := -1.0
	for _, inv := range invocations {
		if inv.Status == models.InvocationStatusCompleted && inv.Fitness > bestFitness {
			bestFitness = inv.Fitness
			best = inv.WorkflowVersionID
		}
	}
	if best == "" {
		return mcp.NewToolResultError("No completed invocation in the last generation"), nil
	}

	version, err := s.store.GetWorkflowVersion(best)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load version: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"workflow_version_id": version.ID,
		"operation":           version.Operation,
		"fitness":             bestFitness,
		"config":              version.Config,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers wires the MCP server's SSE transport under /mcp.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))
	mux.Handle("/mcp", sseServer)
	mux.Handle("/mcp/", sseServer)
}
