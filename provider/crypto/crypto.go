package crypto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/provider"
)

const providerName = "crypto"

// keccak256("Transfer(address,address,uint256)")
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Config describes the chain endpoint and the receiving wallet.
type Config struct {
	RPCURL        string        `env:"CRYPTO_RPC_URL,required"`
	TokenAddress  string        `env:"CRYPTO_TOKEN_ADDRESS,required"`
	TokenSymbol   string        `env:"CRYPTO_TOKEN_SYMBOL" envDefault:"USDC"`
	TokenDecimals int           `env:"CRYPTO_TOKEN_DECIMALS" envDefault:"6"`
	WalletAddress string        `env:"CRYPTO_WALLET_ADDRESS,required"`
	Confirmations int64         `env:"CRYPTO_CONFIRMATIONS" envDefault:"12"`
	HTTPTimeout   time.Duration `env:"CRYPTO_HTTP_TIMEOUT" envDefault:"15s"`
}

// Provider accepts ERC-20 stablecoin payments. Charges cannot be pushed on
// chain, so ProcessPayment returns a pending transaction with payment
// instructions and the caller settles it by submitting the on-chain transfer
// hash to VerifyPayment.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a crypto provider.
func New(cfg Config) (*Provider, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}
	if !isHexAddress(cfg.TokenAddress) || !isHexAddress(cfg.WalletAddress) {
		return nil, errors.New("token and wallet addresses must be 0x-prefixed hex")
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error) {
	if !strings.EqualFold(currency, p.cfg.TokenSymbol) {
		return nil, provider.ErrCurrencyUnsupported
	}

	txMeta := billing.Metadata{
		"pay_to_address": p.cfg.WalletAddress,
		"token_address":  p.cfg.TokenAddress,
		"token_decimals": p.cfg.TokenDecimals,
	}
	for k, v := range metadata {
		txMeta[k] = v
	}

	return billing.NewPaymentTransaction(uuid.NewString(), userID, amount, strings.ToUpper(currency), providerName, txMeta)
}

// VerifyPayment treats transactionID as the on-chain transaction hash. The
// payment verifies when the receipt succeeded, contains an ERC-20 Transfer
// to the configured wallet, and has enough confirmations.
func (p *Provider) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	status, err := p.GetPaymentStatus(ctx, transactionID)
	if err != nil {
		return false, err
	}
	return status == billing.TransactionCompleted, nil
}

func (p *Provider) RefundPayment(_ context.Context, _ string, _ *float64) (*provider.Refund, error) {
	// On-chain transfers are irreversible; a refund is a new outbound
	// payment outside this engine's scope.
	return nil, provider.ErrRefundsUnsupported
}

func (p *Provider) GetPaymentStatus(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	receipt, err := p.getReceipt(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if receipt == nil {
		// Not mined yet, or unknown hash. The chain cannot distinguish.
		return billing.TransactionPending, nil
	}
	if receipt.Status != "0x1" {
		return billing.TransactionFailed, nil
	}
	if !p.hasTransferToWallet(receipt) {
		return billing.TransactionFailed, nil
	}

	confirmed, err := p.confirmations(ctx, receipt.BlockNumber)
	if err != nil {
		return "", err
	}
	if confirmed < p.cfg.Confirmations {
		return billing.TransactionPending, nil
	}
	return billing.TransactionCompleted, nil
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsRefunds:        false,
		SupportsPartialRefunds: false,
		SupportsSubscriptions:  false,
		SupportedCurrencies:    []string{strings.ToUpper(p.cfg.TokenSymbol)},
	}
}

func (p *Provider) Healthcheck(ctx context.Context) error {
	var blockHex string
	err := p.call(ctx, "eth_blockNumber", nil, &blockHex)
	return provider.NewError(providerName, "healthcheck", err)
}

type receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
	Logs        []struct {
		Address string   `json:"address"`
		Topics  []string `json:"topics"`
	} `json:"logs"`
}

func (p *Provider) getReceipt(ctx context.Context, txHash string) (*receipt, error) {
	var rec *receipt
	if err := p.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &rec); err != nil {
		return nil, provider.NewError(providerName, "get_receipt", err)
	}
	return rec, nil
}

func (p *Provider) hasTransferToWallet(rec *receipt) bool {
	wallet := strings.ToLower(strings.TrimPrefix(p.cfg.WalletAddress, "0x"))
	for _, log := range rec.Logs {
		if !strings.EqualFold(log.Address, p.cfg.TokenAddress) {
			continue
		}
		if len(log.Topics) < 3 || !strings.EqualFold(log.Topics[0], transferTopic) {
			continue
		}
		// topics[2] is the zero-padded recipient address.
		if strings.HasSuffix(strings.ToLower(log.Topics[2]), wallet) {
			return true
		}
	}
	return false
}

func (p *Provider) confirmations(ctx context.Context, blockHex string) (int64, error) {
	var latestHex string
	if err := p.call(ctx, "eth_blockNumber", nil, &latestHex); err != nil {
		return 0, provider.NewError(providerName, "get_block_number", err)
	}

	mined, ok := parseHexUint(blockHex)
	if !ok {
		return 0, provider.NewError(providerName, "get_block_number",
			fmt.Errorf("invalid block number %q", blockHex))
	}
	latest, ok := parseHexUint(latestHex)
	if !ok {
		return 0, provider.NewError(providerName, "get_block_number",
			fmt.Errorf("invalid block number %q", latestHex))
	}
	if latest < mined {
		return 0, nil
	}
	return latest - mined + 1, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc endpoint returned %s", resp.Status)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func parseHexUint(s string) (int64, bool) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok || !n.IsInt64() {
		return 0, false
	}
	return n.Int64(), true
}

func isHexAddress(s string) bool {
	return len(s) == 42 && strings.HasPrefix(s, "0x")
}
