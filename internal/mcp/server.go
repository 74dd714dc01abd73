package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/revqhq/revq/internal/emit"
	"github.com/revqhq/revq/internal/match"
	"github.com/revqhq/revq/internal/rules"
)

// Server exposes the review-rule catalog and the pass-marking operation
// as MCP tools, so reviewing agents can query rules and record results
// without running the full pipeline.
type Server struct {
	repoRoot string
	markers  *emit.Markers
}

// NewServer creates the MCP server wrapper. repoRoot anchors rule
// discovery; markers records completed reviews.
func NewServer(repoRoot string, markers *emit.Markers) *Server {
	return &Server{repoRoot: repoRoot, markers: markers}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("revq", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.getConfiguredReviewsTool())
	srv.AddTool(s.markReviewAsPassedTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// get_configured_reviews
func (s *Server) getConfiguredReviewsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_configured_reviews",
		mcp.WithDescription("List the review rules configured in this repository. Returns a JSON array with name, description, and defining_file per rule. Optionally restrict to rules whose patterns match at least one of the given files."),
		mcp.WithString("only_rules_matching_files", mcp.Description("Optional newline- or comma-separated repo-relative file paths to filter rules by")),
	)
	return tool, s.handleGetConfiguredReviews
}

func (s *Server) handleGetConfiguredReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Partial discovery failures are tolerated: bad files are simply
	// absent from the result, never an error.
	rs, _ := rules.Discover(s.repoRoot)

	if filesArg := request.GetString("only_rules_matching_files", ""); filesArg != "" {
		files := splitFilesArg(filesArg)
		var filtered []rules.Rule
		for i := range rs {
			if ruleMatchesAny(&rs[i], files) {
				filtered = append(filtered, rs[i])
			}
		}
		rs = filtered
	}

	data, err := json.Marshal(rules.Summarize(rs))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal rules: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// mark_review_as_passed
func (s *Server) markReviewAsPassedTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("mark_review_as_passed",
		mcp.WithDescription("Record a completed review so the same work is not reviewed again. Pass the exact review_id from the instruction artifact's After Review section."),
		mcp.WithString("review_id", mcp.Required(), mcp.Description("Review id to mark as passed")),
	)
	return tool, s.handleMarkReviewAsPassed
}

func (s *Server) handleMarkReviewAsPassed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID, err := request.RequireString("review_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: review_id"), nil
	}

	confirmation, err := s.markers.MarkPassed(reviewID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(confirmation), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func splitFilesArg(arg string) []string {
	var files []string
	for _, part := range strings.FieldsFunc(arg, func(r rune) bool {
		return r == '\n' || r == ','
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			files = append(files, part)
		}
	}
	return files
}

func ruleMatchesAny(r *rules.Rule, files []string) bool {
	for _, f := range files {
		if match.FileMatches(r, f) {
			return true
		}
	}
	return false
}
