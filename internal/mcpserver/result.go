package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/samsavage/railgun-mcp/internal/engine"
	"github.com/samsavage/railgun-mcp/internal/validation"
	"github.com/samsavage/railgun-mcp/internal/wallet"
)

// fields is the body of a successful tool result.
type fields map[string]any

// okResult renders {"success": true, ...fields} as a text block.
func okResult(f fields) *mcp.CallToolResult {
	body := make(map[string]any, len(f)+1)
	for k, v := range f {
		body[k] = v
	}
	body["success"] = true
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return errorResult("encode result", err)
	}
	return mcp.NewToolResultText(string(data))
}

// errorResult renders {"success": false, "error": "..."} as an error
// result. The assistant reads the message, so it names what failed.
func errorResult(action string, err error) *mcp.CallToolResult {
	return partialResult(action, err, nil)
}

// partialResult is an error result that also reports the work done before
// the failure.
func partialResult(action string, err error, done fields) *mcp.CallToolResult {
	msg := err.Error()
	if action != "" {
		msg = fmt.Sprintf("%s: %s", action, msg)
	}
	body := make(map[string]any, len(done)+3)
	for k, v := range done {
		body[k] = v
	}
	body["success"] = false
	body["error"] = msg
	if hint := hintFor(err); hint != "" {
		body["hint"] = hint
	}
	data, _ := json.Marshal(body)
	return mcp.NewToolResultError(string(data))
}

// invalid reports argument validation failures.
func invalid(errs validation.ValidationErrors) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   "invalid arguments: " + errs.Error(),
		"fields":  []validation.ValidationError(errs),
	})
	return mcp.NewToolResultError(string(data))
}

func hintFor(err error) string {
	var apiErr *engine.APIError
	switch {
	case errors.Is(err, engine.ErrNotConfigured):
		return "Set RAILGUN_API_KEY in the environment or api_key in ~/.railgun/config.json"
	case errors.As(err, &apiErr) && apiErr.Status == 401:
		return "The engine rejected the API key. Check RAILGUN_API_KEY"
	case errors.Is(err, wallet.ErrPasswordRequired):
		return "Pass password or set RAILGUN_WALLET_PASSWORD"
	}
	return ""
}
