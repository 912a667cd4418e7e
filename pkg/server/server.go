// Package server exposes the search pipeline as MCP tools over stdio.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"strings"

	"github.com/entrhq/askweb/pkg/browser"
	"github.com/entrhq/askweb/pkg/history"
	"github.com/entrhq/askweb/pkg/logging"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// Name is the MCP server name announced to clients
	Name = "askweb"

	ToolSearch  = "search"
	ToolHistory = "conversation_history"
)

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Lifecycle receives activity and shutdown notifications.
type Lifecycle interface {
	Touch()
	Shutdown() error
}

// HistoryStore records conversation turns.
type HistoryStore interface {
	Append(ctx context.Context, conversationID, role, content string) error
	Conversation(ctx context.Context, conversationID string) ([]history.Turn, error)
	Close() error
}

// Server adapts a Searcher to the Model Context Protocol.
type Server struct {
	mcp       *server.MCPServer
	searcher  Searcher
	lifecycle Lifecycle
	history   HistoryStore
	log       *logging.Logger
}

// New builds the MCP server and registers its tools. store may be nil, in
// which case conversation ids are ignored and the history tool is absent.
func New(searcher Searcher, lifecycle Lifecycle, store HistoryStore, version string, log *logging.Logger) *Server {
	s := &Server{
		searcher:  searcher,
		lifecycle: lifecycle,
		history:   store,
		log:       log,
	}

	hooks := &server.Hooks{}
	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		switch method {
		case mcp.MethodToolsList, mcp.MethodToolsCall:
			s.lifecycle.Touch()
		}
	})

	s.mcp = server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Ask a question of the web search assistant and return its answer as plain text. Each call drives a real browser and can take up to a minute."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question or search query"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Optional id under which the query and answer are recorded"),
		),
	), s.handleSearch)

	if s.history == nil {
		return
	}

	s.mcp.AddTool(mcp.NewTool(ToolHistory,
		mcp.WithDescription("Return the recorded queries and answers of a conversation, oldest first."),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("The conversation id passed to earlier search calls"),
		),
	), s.handleHistory)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	conversationID := req.GetString("conversation_id", "")

	answer, err := s.searcher.Search(ctx, query)
	if err != nil {
		s.log.Errorf("search failed: %v", err)
		if errors.Is(err, browser.ErrEmptyQuery) {
			return mcp.NewToolResultError("query is required"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed (%s): %v", browser.ErrorKind(err), err)), nil
	}

	if conversationID != "" && s.history != nil {
		s.record(ctx, conversationID, query, answer)
	}

	return mcp.NewToolResultText(answer), nil
}

// record stores both turns. History is secondary to the answer, so a
// failure is logged and the answer still returned.
func (s *Server) record(ctx context.Context, conversationID, query, answer string) {
	if err := s.history.Append(ctx, conversationID, history.RoleUser, query); err != nil {
		s.log.Warnf("failed to record query: %v", err)
		return
	}
	if err := s.history.Append(ctx, conversationID, history.RoleAssistant, answer); err != nil {
		s.log.Warnf("failed to record answer: %v", err)
	}
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID, err := req.RequireString("conversation_id")
	if err != nil || conversationID == "" {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	turns, err := s.history.Conversation(ctx, conversationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load conversation: %v", err)), nil
	}
	if len(turns) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No turns recorded for conversation %q.", conversationID)), nil
	}

	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s", turn.CreatedAt.Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over in/out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(s.log.Writer(), "stdio: ", stdlog.LstdFlags))
	return stdio.Listen(ctx, in, out)
}

// Shutdown tears down the browser session and closes the history store.
func (s *Server) Shutdown() error {
	var errs []error
	if err := s.lifecycle.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history: %w", err))
		}
	}
	return errors.Join(errs...)
}
