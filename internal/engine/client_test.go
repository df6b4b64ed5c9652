package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsavage/railgun-mcp/internal/circuitbreaker"
	"github.com/samsavage/railgun-mcp/internal/retry"
)

var fastRetry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryPolicy(fastRetry), WithBreaker(circuitbreaker.New(10, time.Minute))}, opts...)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "test-key"}, opts...)
}

func TestClient_NotConfigured(t *testing.T) {
	c := New(Config{BaseURL: "https://api.example.com"})
	assert.False(t, c.Configured())
	_, err := c.Relayers(context.Background(), "ethereum")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLoadWallet_SendsAuthAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallets/load", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req LoadWalletRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "polygon", req.Network)
		assert.Equal(t, uint32(2), req.Index)

		_ = json.NewEncoder(w).Encode(LoadWalletResponse{WalletID: "eng-1", Address0zk: "0zk1abc"})
	})

	out, err := c.LoadWallet(context.Background(), LoadWalletRequest{Mnemonic: "m", Index: 2, Network: "polygon"})
	require.NoError(t, err)
	assert.Equal(t, "eng-1", out.WalletID)
}

func TestBalances_QueryAndDecode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallets/eng-1/balances", r.URL.Path)
		assert.Equal(t, "arbitrum", r.URL.Query().Get("network"))
		_, _ = w.Write([]byte(`{"balances":[{"token_address":"0xaf88d065e77c8cC2239327C5EDb3A432268e5831","symbol":"USDC","amount":"2500000"}]}`))
	})

	balances, err := c.Balances(context.Background(), "eng-1", "arbitrum")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "2500000", balances[0].Amount)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"relayers":[{"id":"r1","fee_per_unit_gas":"1000","reliability":0.97}]}`))
	})

	relayers, err := c.Relayers(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, relayers, 1)
	assert.Equal(t, 0.97, relayers[0].Reliability)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad_request","message":"amount must be positive"}`))
	})

	_, err := c.PopulateUnshield(context.Background(), UnshieldRequest{Network: "ethereum"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "amount must be positive", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker().State("transactions.unshield"))
}

func TestSubmitToRelayer_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.SubmitToRelayer(context.Background(), SubmitRequest{RelayerID: "r1", Network: "ethereum", TransactionData: "0x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryPolicy(retry.Policy{Attempts: 1}), WithBreaker(circuitbreaker.New(2, time.Minute)))

	for i := 0; i < 2; i++ {
		_, err := c.VerifyProof(context.Background(), "0xproof")
		require.Error(t, err)
	}
	_, err := c.VerifyProof(context.Background(), "0xproof")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPopulate_RequiresTarget(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":"0x"}`))
	})
	_, err := c.PopulateShield(context.Background(), ShieldRequest{Network: "ethereum"})
	assert.Error(t, err)
}

func TestPopulatedTx_ValueWei(t *testing.T) {
	for value, want := range map[string]int64{"": 0, "1000": 1000, "0x10": 16} {
		p := PopulatedTx{Value: value}
		got, err := p.ValueWei()
		require.NoError(t, err)
		assert.Equal(t, want, got.Int64(), value)
	}
	_, err := (&PopulatedTx{Value: "abc"}).ValueWei()
	assert.Error(t, err)
}
