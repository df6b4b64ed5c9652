package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/samsavage/railgun-mcp/internal/idgen"
	"github.com/samsavage/railgun-mcp/internal/logging"
	"github.com/samsavage/railgun-mcp/internal/metrics"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/ratelimit"
	"github.com/samsavage/railgun-mcp/internal/traces"
)

// instrument wraps every tool call with a request id, a span, a log line
// and Prometheus observations. A positive timeout bounds the call.
func instrument(logger *slog.Logger, timeout time.Duration) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tool := req.Params.Name
			ctx = logging.WithLogger(ctx, logger)
			ctx = logging.WithRequestID(ctx, idgen.WithPrefix(idgen.PrefixRequest))
			ctx = logging.WithTool(ctx, tool)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			ctx, span := traces.StartSpan(ctx, "mcp.tool."+tool, traces.Tool(tool))
			defer span.End()

			start := time.Now()
			res, err := next(ctx, req)
			failed := err != nil || (res != nil && res.IsError)
			metrics.ObserveTool(tool, start, failed)

			log := logging.L(ctx)
			switch {
			case err != nil:
				traces.RecordError(span, err)
				log.Error("tool call failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
			case failed:
				log.Warn("tool returned error", "duration_ms", time.Since(start).Milliseconds(), "result", firstText(res))
			default:
				log.Info("tool call", "duration_ms", time.Since(start).Milliseconds())
			}
			return res, err
		}
	}
}

func firstText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if tc, ok := res.Content[0].(mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

// sendTools move funds and share the send limiter.
var sendTools = map[string]bool{
	"shield_tokens":     true,
	"unshield_tokens":   true,
	"private_transfer":  true,
	"just_send_money":   true,
	"execute_recipe":    true,
	"submit_to_relayer": true,
	"distribute_tokens": true,
}

// walletResolver maps any wallet reference (id, 0x or 0zk) to the wallet id.
type walletResolver func(ctx context.Context, ref string) (string, error)

func walletIDs(rail *railgun.Service) walletResolver {
	return func(ctx context.Context, ref string) (string, error) {
		w, err := rail.Wallets().Get(ctx, ref)
		if err != nil {
			return "", err
		}
		return w.ID, nil
	}
}

// limitSends refuses fund-moving calls once a wallet's bucket is empty. All
// references to one wallet share its bucket; an unknown reference is keyed
// as given.
func limitSends(l *ratelimit.Limiter, resolve walletResolver) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tool := req.Params.Name
			if !sendTools[tool] {
				return next(ctx, req)
			}
			key := "tool:" + tool
			for _, arg := range []string{"wallet_id", "source_wallet_id"} {
				ref := str(req, arg)
				if ref == "" {
					continue
				}
				key = "wallet:" + strings.ToLower(ref)
				if resolve != nil {
					if id, err := resolve(ctx, ref); err == nil {
						key = "wallet:" + id
					}
				}
				break
			}
			if !l.Allow(key) {
				wait := l.RetryAfter(key).Round(time.Second)
				return errorResult("", fmt.Errorf("rate limit exceeded: %s is limited to a few sends per minute, try again shortly (about %s)", tool, wait)), nil
			}
			return next(ctx, req)
		}
	}
}
