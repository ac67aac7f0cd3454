package crypto_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/provider"
	"github.com/dmitrymomot/agentpay/provider/crypto"
)

const (
	tokenAddr     = "0x00000000000000000000000000000000000000aa"
	walletAddr    = "0x00000000000000000000000000000000000000bb"
	transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	paddedWallet  = "0x00000000000000000000000000000000000000000000000000000000000000bb"
)

// rpcStub answers eth_blockNumber and eth_getTransactionReceipt with canned
// values.
type rpcStub struct {
	latestBlock string
	receipts    map[string]any
}

func (s *rpcStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = s.latestBlock
		case "eth_getTransactionReceipt":
			hash, _ := req.Params[0].(string)
			result = s.receipts[hash]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  result,
		})
	}
}

func newProvider(t *testing.T, stub *rpcStub, confirmations int64) *crypto.Provider {
	t.Helper()

	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	p, err := crypto.New(crypto.Config{
		RPCURL:        srv.URL,
		TokenAddress:  tokenAddr,
		TokenSymbol:   "USDC",
		TokenDecimals: 6,
		WalletAddress: walletAddr,
		Confirmations: confirmations,
		HTTPTimeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func confirmedReceipt() map[string]any {
	return map[string]any{
		"status":      "0x1",
		"blockNumber": "0x10",
		"logs": []map[string]any{{
			"address": tokenAddr,
			"topics": []string{
				transferTopic,
				"0x0000000000000000000000000000000000000000000000000000000000000001",
				paddedWallet,
			},
		}},
	}
}

func TestCryptoNew(t *testing.T) {
	t.Parallel()

	_, err := crypto.New(crypto.Config{RPCURL: "http://localhost:8545"})
	require.Error(t, err, "addresses are required")

	_, err = crypto.New(crypto.Config{
		RPCURL:        "http://localhost:8545",
		TokenAddress:  "not-hex",
		WalletAddress: walletAddr,
	})
	require.Error(t, err)
}

func TestCryptoProcessPayment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newProvider(t, &rpcStub{latestBlock: "0x10"}, 12)

	t.Run("returns pending transaction with instructions", func(t *testing.T) {
		t.Parallel()

		tx, err := p.ProcessPayment(ctx, "user-1", 25, "USDC", nil)
		require.NoError(t, err)
		assert.True(t, tx.IsPending())
		assert.Equal(t, walletAddr, tx.Metadata["pay_to_address"])
		assert.Equal(t, tokenAddr, tx.Metadata["token_address"])
	})

	t.Run("rejects other currencies", func(t *testing.T) {
		t.Parallel()

		_, err := p.ProcessPayment(ctx, "user-1", 25, "USD", nil)
		require.ErrorIs(t, err, provider.ErrCurrencyUnsupported)
	})

	t.Run("rejects amount below stablecoin minimum", func(t *testing.T) {
		t.Parallel()

		_, err := p.ProcessPayment(ctx, "user-1", 0.10, "USDC", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "below the minimum 0.50 USDC")
	})
}

func TestCryptoPaymentStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("confirmed transfer completes", func(t *testing.T) {
		t.Parallel()

		// Mined at 0x10, latest 0x20: 17 confirmations.
		stub := &rpcStub{
			latestBlock: "0x20",
			receipts:    map[string]any{"0xhash": confirmedReceipt()},
		}
		p := newProvider(t, stub, 12)

		status, err := p.GetPaymentStatus(ctx, "0xhash")
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionCompleted, status)

		ok, err := p.VerifyPayment(ctx, "0xhash")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("too few confirmations stays pending", func(t *testing.T) {
		t.Parallel()

		stub := &rpcStub{
			latestBlock: "0x12",
			receipts:    map[string]any{"0xhash": confirmedReceipt()},
		}
		p := newProvider(t, stub, 12)

		status, err := p.GetPaymentStatus(ctx, "0xhash")
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionPending, status)
	})

	t.Run("unknown hash is pending", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t, &rpcStub{latestBlock: "0x20"}, 12)
		status, err := p.GetPaymentStatus(ctx, "0xmissing")
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionPending, status)
	})

	t.Run("reverted receipt fails", func(t *testing.T) {
		t.Parallel()

		rec := confirmedReceipt()
		rec["status"] = "0x0"
		stub := &rpcStub{
			latestBlock: "0x20",
			receipts:    map[string]any{"0xhash": rec},
		}
		p := newProvider(t, stub, 12)

		status, err := p.GetPaymentStatus(ctx, "0xhash")
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionFailed, status)
	})

	t.Run("transfer to another wallet fails", func(t *testing.T) {
		t.Parallel()

		rec := confirmedReceipt()
		rec["logs"] = []map[string]any{{
			"address": tokenAddr,
			"topics": []string{
				transferTopic,
				"0x0000000000000000000000000000000000000000000000000000000000000001",
				"0x00000000000000000000000000000000000000000000000000000000000000cc",
			},
		}}
		stub := &rpcStub{
			latestBlock: "0x20",
			receipts:    map[string]any{"0xhash": rec},
		}
		p := newProvider(t, stub, 12)

		status, err := p.GetPaymentStatus(ctx, "0xhash")
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionFailed, status)
	})
}

func TestCryptoRefundsUnsupported(t *testing.T) {
	t.Parallel()

	p := newProvider(t, &rpcStub{latestBlock: "0x10"}, 12)
	_, err := p.RefundPayment(context.Background(), "0xhash", nil)
	require.ErrorIs(t, err, provider.ErrRefundsUnsupported)
	assert.False(t, p.Capabilities().SupportsRefunds)
}

func TestCryptoHealthcheck(t *testing.T) {
	t.Parallel()

	p := newProvider(t, &rpcStub{latestBlock: "0x10"}, 12)
	require.NoError(t, p.Healthcheck(context.Background()))
}
