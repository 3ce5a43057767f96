package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEVMKey is a throwaway secp256k1 key used only in tests.
const testEVMKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func evmHandlers(receipt rpcHandler) map[string]rpcHandler {
	return map[string]rpcHandler{
		"eth_chainId":               static("0x5"),
		"eth_getBalance":            static("0x1bc16d674ec80000"),
		"eth_getTransactionCount":   static("0x7"),
		"eth_gasPrice":              static("0x3b9aca00"),
		"eth_sendRawTransaction":    sendRawTransaction,
		"eth_getTransactionReceipt": receipt,
	}
}

// sendRawTransaction echoes back the keccak hash of the submitted payload.
func sendRawTransaction(params json.RawMessage) (any, *rpcError) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) != 1 {
		return nil, &rpcError{Code: -32602, Message: "invalid params"}
	}

	return crypto.Keccak256Hash(common.FromHex(args[0])).Hex(), nil
}

func receiptJSON(hash string, status string) map[string]any {
	return map[string]any{
		"type":              "0x0",
		"status":            status,
		"cumulativeGasUsed": "0x5208",
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   hash,
		"contractAddress":   nil,
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"blockHash":         "0x" + strings.Repeat("ab", 32),
		"blockNumber":       "0x10",
		"transactionIndex":  "0x0",
	}
}

func newTestEVMClient(t *testing.T, url string, timeout time.Duration) Client {
	t.Helper()

	c, err := NewEVMClient(context.Background(), testLogger(), &config.ChainConfig{
		Type:             config.ChainTypeEVM,
		RPCURL:           url,
		SignerPrivateKey: testEVMKey,
	}, Options{
		ConfirmationTimeout: timeout,
		PollInterval:        5 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewEVMClient(t *testing.T) {
	srv := newFakeRPC(t, evmHandlers(static(nil)))

	c := newTestEVMClient(t, srv.URL(), time.Second)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(testEVMKey, "0x"))
	require.NoError(t, err)

	assert.Equal(t, "evm", c.Name())
	assert.Equal(t, int64(5), c.ChainID())
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), c.Address())
}

func TestNewEVMClient_InvalidKey(t *testing.T) {
	_, err := NewEVMClient(context.Background(), testLogger(), &config.ChainConfig{
		RPCURL:           "http://127.0.0.1:1",
		SignerPrivateKey: "zz",
	}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding signer private key")
}

func TestEVMClient_Balance(t *testing.T) {
	srv := newFakeRPC(t, evmHandlers(static(nil)))
	c := newTestEVMClient(t, srv.URL(), time.Second)

	balance, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, balance, 1e-12)
}

func TestEVMClient_SendSelfTransfer(t *testing.T) {
	t.Run("receipt appears after pending polls", func(t *testing.T) {
		var polls atomic.Int32

		srv := newFakeRPC(t, evmHandlers(func(params json.RawMessage) (any, *rpcError) {
			var args []string
			_ = json.Unmarshal(params, &args)

			if polls.Add(1) < 3 {
				return nil, nil
			}

			return receiptJSON(args[0], "0x1"), nil
		}))

		c := newTestEVMClient(t, srv.URL(), 2*time.Second)

		hash, err := c.SendSelfTransfer(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "0x"))
		assert.Len(t, hash, 66)
		assert.Equal(t, 1, srv.Calls("eth_sendRawTransaction"))
		assert.GreaterOrEqual(t, srv.Calls("eth_getTransactionReceipt"), 3)
	})

	t.Run("reverted receipt", func(t *testing.T) {
		srv := newFakeRPC(t, evmHandlers(func(params json.RawMessage) (any, *rpcError) {
			var args []string
			_ = json.Unmarshal(params, &args)

			return receiptJSON(args[0], "0x0"), nil
		}))

		c := newTestEVMClient(t, srv.URL(), 2*time.Second)

		hash, err := c.SendSelfTransfer(context.Background())
		require.Error(t, err)
		assert.Empty(t, hash)
		assert.ErrorIs(t, err, ErrTransactionFailed)
	})

	t.Run("rejected by node", func(t *testing.T) {
		handlers := evmHandlers(static(nil))
		handlers["eth_sendRawTransaction"] = failing("insufficient funds for gas * price + value")

		srv := newFakeRPC(t, handlers)
		c := newTestEVMClient(t, srv.URL(), time.Second)

		hash, err := c.SendSelfTransfer(context.Background())
		require.Error(t, err)
		assert.Empty(t, hash)
		assert.Contains(t, err.Error(), "insufficient funds")
	})

	t.Run("never mined", func(t *testing.T) {
		srv := newFakeRPC(t, evmHandlers(static(nil)))
		c := newTestEVMClient(t, srv.URL(), 30*time.Millisecond)

		hash, err := c.SendSelfTransfer(context.Background())
		require.Error(t, err)
		assert.Empty(t, hash)
		assert.ErrorIs(t, err, ErrConfirmationTimeout)
	})
}

func TestWeiToEther(t *testing.T) {
	oneEther, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	assert.InDelta(t, 1.0, weiToEther(oneEther), 1e-12)
	assert.InDelta(t, 0.001, weiToEther(new(big.Int).Div(oneEther, big.NewInt(1000))), 1e-12)
	assert.Zero(t, weiToEther(big.NewInt(0)))
}
