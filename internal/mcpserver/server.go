// Package mcpserver exposes the Railgun service as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/samsavage/railgun-mcp/internal/config"
	"github.com/samsavage/railgun-mcp/internal/multiwallet"
	"github.com/samsavage/railgun-mcp/internal/railgun"
	"github.com/samsavage/railgun-mcp/internal/ratelimit"
	"github.com/samsavage/railgun-mcp/internal/validation"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "railgun-mcp"

// Version is set by ldflags.
var Version = "dev"

// DefaultToolTimeout bounds a single tool call.
const DefaultToolTimeout = 5 * time.Minute

// Deps are the collaborators the tools need.
type Deps struct {
	Rail        *railgun.Service
	Prices      multiwallet.PriceSource
	Config      *config.Config
	Logger      *slog.Logger
	ToolTimeout time.Duration
	// SendLimiter throttles fund-moving tools; nil disables it.
	SendLimiter *ratelimit.Limiter
}

// NewMCPServer creates a configured MCP server with all Railgun tools registered.
func NewMCPServer(d Deps) *server.MCPServer {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.ToolTimeout
	if timeout == 0 {
		timeout = DefaultToolTimeout
	}

	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(instrument(logger, timeout)),
		server.WithInstructions("Private transactions on the Railgun protocol. " +
			"Start with list_wallets or create_wallet, then get_balance. " +
			"Use the plain-English helpers (can_i_afford_this, where_are_my_tokens) when unsure."),
	}
	if d.SendLimiter != nil {
		var resolve walletResolver
		if d.Rail != nil {
			resolve = walletIDs(d.Rail)
		}
		opts = append(opts, server.WithToolHandlerMiddleware(limitSends(d.SendLimiter, resolve)))
	}
	s := server.NewMCPServer(ServerName, Version, opts...)
	h := NewHandlers(d.Rail, d.Prices, d.Config)
	s.AddTools(toolset(h)...)
	return s
}

func toolset(h *Handlers) []server.ServerTool {
	return []server.ServerTool{
		{Tool: ToolCreateWallet, Handler: h.HandleCreateWallet},
		{Tool: ToolImportWallet, Handler: h.HandleImportWallet},
		{Tool: ToolListWallets, Handler: h.HandleListWallets},
		{Tool: ToolGetBalance, Handler: h.HandleGetBalance},
		{Tool: ToolGetGasPrice, Handler: h.HandleGetGasPrice},
		{Tool: ToolShieldTokens, Handler: h.HandleShieldTokens},
		{Tool: ToolUnshieldTokens, Handler: h.HandleUnshieldTokens},
		{Tool: ToolPrivateTransfer, Handler: h.HandlePrivateTransfer},
		{Tool: ToolGetTransactionStatus, Handler: h.HandleGetTransactionStatus},
		{Tool: ToolGetTransactionHistory, Handler: h.HandleGetTransactionHistory},
		{Tool: ToolCreateRecipe, Handler: h.HandleCreateRecipe},
		{Tool: ToolExecuteRecipe, Handler: h.HandleExecuteRecipe},
		{Tool: ToolEstimateRecipeGas, Handler: h.HandleEstimateRecipeGas},
		{Tool: ToolCreateSwapRecipe, Handler: h.HandleCreateSwapRecipe},
		{Tool: ToolGetRelayers, Handler: h.HandleGetRelayers},
		{Tool: ToolSubmitToRelayer, Handler: h.HandleSubmitToRelayer},
		{Tool: ToolCreateWalletBatch, Handler: h.HandleCreateWalletBatch},
		{Tool: ToolDistributeTokens, Handler: h.HandleDistributeTokens},
		{Tool: ToolMixTokens, Handler: h.HandleMixTokens},
		{Tool: ToolGetWalletAnalytics, Handler: h.HandleGetWalletAnalytics},
		{Tool: ToolCanIAffordThis, Handler: h.HandleCanIAffordThis},
		{Tool: ToolWhyIsThisSoExpensive, Handler: h.HandleWhyIsThisSoExpensive},
		{Tool: ToolJustSendMoney, Handler: h.HandleJustSendMoney},
		{Tool: ToolWhereAreMyTokens, Handler: h.HandleWhereAreMyTokens},
		{Tool: ToolFixStuckTransaction, Handler: h.HandleFixStuckTransaction},
		{Tool: ToolOptimizeMyPrivacy, Handler: h.HandleOptimizeMyPrivacy},
		{Tool: ToolEmergencyExit, Handler: h.HandleEmergencyExit},
		{Tool: ToolVerifyProof, Handler: h.HandleVerifyProof},
		{Tool: ToolGetSupportedTokens, Handler: h.HandleGetSupportedTokens},
		{Tool: ToolCheckConfig, Handler: h.HandleCheckConfig},
	}
}

// Tools lists every tool definition in registration order.
func Tools() []mcp.Tool {
	set := toolset(&Handlers{})
	out := make([]mcp.Tool, len(set))
	for i, st := range set {
		out[i] = st.Tool
	}
	return out
}

// Serve runs s on the configured transport until ctx is cancelled. The
// stdio transport reads in and writes out; logs must go elsewhere.
func Serve(ctx context.Context, s *server.MCPServer, cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	switch cfg.Transport {
	case config.TransportSSE:
		return serveHTTP(ctx, server.NewSSEServer(s), cfg.ListenAddr, logger)
	case config.TransportHTTP:
		return serveHTTP(ctx, server.NewStreamableHTTPServer(s), cfg.ListenAddr, logger)
	case "", config.TransportStdio:
		stdio := server.NewStdioServer(s)
		stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
		err := stdio.Listen(ctx, in, out)
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func serveHTTP(ctx context.Context, h http.Handler, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           validation.LimitBody(h, validation.MaxRequestSize),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp http transport listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("mcp http transport shutting down")
	return srv.Shutdown(shutdownCtx)
}
