// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Daybook diary tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/perch/daybook/internal/models"
	"github.com/perch/daybook/internal/recordstore"
)

// Server wraps the MCP server with Daybook tools.
type Server struct {
	mcp   *server.MCPServer
	store recordstore.Store
}

// New creates a new MCP server with all Daybook tools registered.
func New(store recordstore.Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"Daybook",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_days",
		mcp.WithDescription("List per-day summaries: interaction flag, diary submission state, and which days are still editable."),
	), s.listDays)

	s.mcp.AddTool(mcp.NewTool("read_day",
		mcp.WithDescription("Read the full record for one day: dashboard data plus the diary questionnaire and its responses."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Calendar day in YYYY-MM-DD form")),
	), s.readDay)

	s.mcp.AddTool(mcp.NewTool("submit_diary",
		mcp.WithDescription("Submit diary responses for a day. responses MUST follow the diary response format; "+
			"read it first via the get_diary_contract tool or the daybook://diary-format resource. "+
			"The server rejects days whose edit window has closed."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Calendar day in YYYY-MM-DD form")),
		mcp.WithString("responses", mcp.Required(), mcp.Description("JSON object mapping response keys to answers")),
	), s.submitDiary)

	s.mcp.AddTool(mcp.NewTool("get_diary_contract",
		mcp.WithDescription("Returns the diary response format contract. "+
			"Call this before submitting diary responses to ensure correct structure."),
	), s.getDiaryContract)

	// Resource: diary response format contract.
	s.mcp.AddResource(
		mcp.NewResource("daybook://diary-format", "Diary Response Format",
			mcp.WithResourceDescription("Canonical response format that diary submissions must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDiaryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDays(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries, err := s.store.ListSummaries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(summaries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.GetByDate(ctx, date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", date, err)), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) submitDiary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("responses")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var responses models.Responses
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("responses is not a valid JSON object: %v", err)), nil
	}

	submitted := true
	rec, err := s.store.UpdateByDate(ctx, date, models.DiaryUpdate{
		Responses: responses,
		Submitted: &submitted,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit %s: %v", date, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("submitted: %s (%d responses)", rec.Date, len(rec.Diary.Responses))), nil
}

func (s *Server) getDiaryContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DiaryFormatContract), nil
}

func (s *Server) readDiaryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "daybook://diary-format",
			MIMEType: "text/markdown",
			Text:     DiaryFormatContract,
		},
	}, nil
}
