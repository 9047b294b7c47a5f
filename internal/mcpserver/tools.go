package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers the backlog tools with the MCP server.
func (s *Server) registerTools() error {
	// backlog-list: the hierarchy in scheduling order, optionally filtered
	s.mcpServer.AddTool(
		mcp.NewTool("backlog-list",
			mcp.WithDescription("List backlog items in scheduling order (depth-first pre-order), optionally filtered by status"),
			mcp.WithString("status",
				mcp.Description("Only return items with this status (planned, researching, implementing, complete, failed, obsolete)"),
			),
		),
		s.handleBacklogList,
	)

	// update-item-status: record a status transition
	s.mcpServer.AddTool(
		mcp.NewTool("update-item-status",
			mcp.WithDescription("Set the status of a backlog item and persist the change"),
			mcp.WithString("id", mcp.Required(),
				mcp.Description("Item id, e.g. P1.M2.T3.S4"),
			),
			mcp.WithString("status", mcp.Required(),
				mcp.Description("New status (planned, researching, implementing, complete, failed, obsolete)"),
			),
		),
		s.handleUpdateItemStatus,
	)

	// blocking-deps: dependencies preventing a subtask from executing
	s.mcpServer.AddTool(
		mcp.NewTool("blocking-deps",
			mcp.WithDescription("List the dependencies of a subtask that are not yet complete"),
			mcp.WithString("id", mcp.Required(),
				mcp.Description("Subtask id, e.g. P1.M2.T3.S4"),
			),
		),
		s.handleBlockingDeps,
	)

	return nil
}
