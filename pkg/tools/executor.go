// Package tools defines the execution contract between the gateway
// surface and whatever runs a tool call.
package tools

import "context"

// ToolKind classifies how a tool is hosted.
type ToolKind int

const (
	// ToolKindBuiltin runs in-process via a registered FunctionProvider
	// (sandbox lifecycle, reachability, messaging).
	ToolKindBuiltin ToolKind = iota

	// ToolKindExternal runs outside this process. Reserved for future
	// delegation; no executor of this kind ships today.
	ToolKindExternal
)

// ToolExecutor runs tool calls on behalf of the gateway surface.
//
// Tool-level failures (bad arguments, remote errors) travel through
// ToolResult.IsError so the calling agent sees them as tool output; a
// non-nil error return means the executor itself broke.
type ToolExecutor interface {
	Kind() ToolKind
	CanExecute(toolName string) bool
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolCall is one request to invoke a tool.
type ToolCall struct {
	// ID correlates the call with its result.
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the textual tool output.
	Output string

	// IsError marks Output as an error message.
	IsError bool
}
