package chain

import (
	"context"
	"fmt"

	"github.com/ethpandaops/txlatency/pkg/config"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// clusterURLs maps Solana cluster names to their public RPC endpoints.
var clusterURLs = map[string]string{
	"devnet":       "https://api.devnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
	"localnet":     "http://127.0.0.1:8899",
}

// ClusterURL returns the RPC endpoint of a named Solana cluster.
func ClusterURL(cluster string) (string, error) {
	url, ok := clusterURLs[cluster]
	if !ok {
		return "", fmt.Errorf("unknown solana cluster %q", cluster)
	}

	return url, nil
}

// commitmentRank orders confirmation levels so a status can be compared
// against the configured commitment.
var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

type solanaClient struct {
	log        logrus.FieldLogger
	rpc        *rpc.Client
	endpoint   string
	key        solana.PrivateKey
	pub        solana.PublicKey
	commitment rpc.CommitmentType
	opts       Options
}

// Ensure interface compliance.
var _ Client = (*solanaClient)(nil)

// NewSolanaClient creates a Solana client from a base58-encoded 64-byte
// secret key.
func NewSolanaClient(
	log logrus.FieldLogger,
	cfg *config.ChainConfig,
	opts Options,
) (Client, error) {
	key, err := solana.PrivateKeyFromBase58(cfg.SignerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding signer private key: %w", err)
	}

	if len(key) != 64 {
		return nil, fmt.Errorf("decoding signer private key: expected 64 bytes, got %d", len(key))
	}

	endpoint := cfg.RPCURL
	if endpoint == "" {
		endpoint, err = ClusterURL(cfg.Cluster)
		if err != nil {
			return nil, err
		}
	}

	commitment := rpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}

	pub := key.PublicKey()

	return &solanaClient{
		log: log.WithFields(logrus.Fields{
			"component": "solana",
			"address":   pub.String(),
		}),
		rpc:        rpc.New(endpoint),
		endpoint:   endpoint,
		key:        key,
		pub:        pub,
		commitment: commitment,
		opts:       opts,
	}, nil
}

func (c *solanaClient) Name() string {
	return config.ChainTypeSolana
}

func (c *solanaClient) Address() string {
	return c.pub.String()
}

// ChainID is always 0; Solana has no chain id.
func (c *solanaClient) ChainID() int64 {
	return 0
}

// Balance returns the account balance in SOL.
func (c *solanaClient) Balance(ctx context.Context) (float64, error) {
	out, err := c.rpc.GetBalance(ctx, c.pub, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}

	return float64(out.Value) / LamportsPerSOL, nil
}

// SendSelfTransfer sends 0 lamports to the signer and waits until the
// signature reaches the configured commitment.
func (c *solanaClient) SendSelfTransfer(ctx context.Context) (string, error) {
	latest, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(0, c.pub, c.pub).Build(),
		},
		latest.Value.Blockhash,
		solana.TransactionPayer(c.pub),
	)
	if err != nil {
		return "", fmt.Errorf("building transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.pub) {
			return &c.key
		}

		return nil
	}); err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}

	c.log.WithField("signature", sig.String()).Debug("Transaction submitted")

	err = waitFor(ctx, c.opts.ConfirmationTimeout, c.opts.PollInterval,
		func(ctx context.Context) (bool, error) {
			out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
			if err != nil {
				return false, fmt.Errorf("getSignatureStatuses: %w", err)
			}

			if out == nil || len(out.Value) == 0 {
				return false, nil
			}

			return signatureConfirmed(out.Value[0], c.commitment)
		},
	)
	if err != nil {
		return "", fmt.Errorf("confirming %s: %w", sig, err)
	}

	return sig.String(), nil
}

func (c *solanaClient) Close() error {
	return c.rpc.Close()
}

// signatureConfirmed reports whether status has reached the commitment. A
// status carrying an execution error is ErrTransactionFailed.
func signatureConfirmed(
	status *rpc.SignatureStatusesResult,
	commitment rpc.CommitmentType,
) (bool, error) {
	if status == nil {
		return false, nil
	}

	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}

	want, ok := commitmentRank[rpc.ConfirmationStatusType(commitment)]
	if !ok {
		want = commitmentRank[rpc.ConfirmationStatusConfirmed]
	}

	return commitmentRank[status.ConfirmationStatus] >= want, nil
}
