package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/sirupsen/logrus"
)

// selfTransferGas is the intrinsic gas of a plain value transfer.
const selfTransferGas = 21000

var weiPerEther = new(big.Float).SetInt(big.NewInt(1_000_000_000_000_000_000))

type evmClient struct {
	log     logrus.FieldLogger
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
	opts    Options
}

// Ensure interface compliance.
var _ Client = (*evmClient)(nil)

// NewEVMClient dials an EVM JSON-RPC endpoint and resolves its chain id. The
// signer key is a hex-encoded secp256k1 private key.
func NewEVMClient(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.ChainConfig,
	opts Options,
) (Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding signer private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()

		return nil, fmt.Errorf("eth_chainId: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)

	return &evmClient{
		log: log.WithFields(logrus.Fields{
			"component": "evm",
			"address":   address.Hex(),
			"chain_id":  chainID.String(),
		}),
		eth:     eth,
		key:     key,
		address: address,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		opts:    opts,
	}, nil
}

func (c *evmClient) Name() string {
	return config.ChainTypeEVM
}

func (c *evmClient) Address() string {
	return c.address.Hex()
}

func (c *evmClient) ChainID() int64 {
	return c.chainID.Int64()
}

// Balance returns the account balance in ether.
func (c *evmClient) Balance(ctx context.Context) (float64, error) {
	wei, err := c.eth.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return 0, fmt.Errorf("eth_getBalance: %w", err)
	}

	return weiToEther(wei), nil
}

// SendSelfTransfer sends 0 wei to the signer and waits for its receipt.
func (c *evmClient) SendSelfTransfer(ctx context.Context) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("eth_getTransactionCount: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("eth_gasPrice: %w", err)
	}

	to := c.address

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      selfTransferGas,
		GasPrice: gasPrice,
	}), c.signer, c.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("eth_sendRawTransaction: %w", err)
	}

	hash := tx.Hash()

	c.log.WithField("tx_hash", hash.Hex()).Debug("Transaction submitted")

	err = waitFor(ctx, c.opts.ConfirmationTimeout, c.opts.PollInterval,
		func(ctx context.Context) (bool, error) {
			receipt, err := c.eth.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					return false, nil
				}

				return false, fmt.Errorf("eth_getTransactionReceipt: %w", err)
			}

			if receipt.Status != types.ReceiptStatusSuccessful {
				return false, fmt.Errorf("%w: status %d in block %s",
					ErrTransactionFailed, receipt.Status, receipt.BlockNumber)
			}

			return true, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("confirming %s: %w", hash.Hex(), err)
	}

	return hash.Hex(), nil
}

func (c *evmClient) Close() error {
	c.eth.Close()

	return nil
}

func weiToEther(wei *big.Int) float64 {
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()

	return ether
}
