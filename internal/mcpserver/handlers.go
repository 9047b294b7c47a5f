package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/prdflow/internal/backlog"
)

// itemSummary is the wire shape returned by backlog-list and blocking-deps.
// Parent is empty for phases.
type itemSummary struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func summarize(it backlog.Item) itemSummary {
	return itemSummary{
		ID:     it.ItemID(),
		Parent: backlog.ParentID(it.ItemID()),
		Kind:   string(it.ItemKind()),
		Title:  it.ItemTitle(),
		Status: string(it.ItemStatus()),
	}
}

// handleBacklogList returns the backlog in depth-first pre-order,
// optionally filtered by status.
func (s *Server) handleBacklogList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.store.LoadBacklog()
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	args := request.GetArguments()
	statusFilter := ""
	if args != nil {
		if v, ok := args["status"].(string); ok {
			statusFilter = v
		}
	}

	var items []itemSummary
	if statusFilter != "" {
		status := backlog.Status(statusFilter)
		if !status.Valid() {
			return mcp.NewToolResultText(fmt.Sprintf("error: unknown status %q", statusFilter)), nil
		}
		for _, it := range backlog.FilterByStatus(b, status) {
			items = append(items, summarize(it))
		}
	} else {
		backlog.Walk(b, func(it backlog.Item) bool {
			items = append(items, summarize(it))
			return true
		})
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleUpdateItemStatus records a status transition through the store's
// batched update and flushes it so external edits are durable immediately.
func (s *Server) handleUpdateItemStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultText("error: missing 'id' parameter"), nil
	}
	statusStr, ok := args["status"].(string)
	if !ok || statusStr == "" {
		return mcp.NewToolResultText("error: missing 'status' parameter"), nil
	}
	status := backlog.Status(statusStr)
	if !status.Valid() {
		return mcp.NewToolResultText(fmt.Sprintf("error: unknown status %q", statusStr)), nil
	}

	if _, err := s.store.UpdateItemStatus(id, status); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	if _, err := s.store.FlushUpdates(); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s set to %s", id, status)), nil
}

// handleBlockingDeps lists the resolved dependencies of a subtask that are
// not yet complete, in declaration order.
func (s *Server) handleBlockingDeps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if args == nil {
		return mcp.NewToolResultText("error: no arguments provided"), nil
	}
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultText("error: missing 'id' parameter"), nil
	}

	b, err := s.store.LoadBacklog()
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	sub := backlog.FindSubtask(b, id)
	if sub == nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: no subtask %q", id)), nil
	}

	blockers := make([]itemSummary, 0)
	for _, dep := range backlog.DependenciesOf(b, sub) {
		if dep.Status != backlog.StatusComplete {
			blockers = append(blockers, summarize(dep))
		}
	}

	data, err := json.MarshalIndent(blockers, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
