// Package chain anchors RFQ and bid records on a registry contract. Each
// call is a linear build-sign-send-wait sequence bounded by a context
// timeout; a failed receipt is fatal for the enclosing request, but a
// missing or undecodable event is not — the off-chain record is still
// created with a null on-chain id.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Descriptor is the JSON file supplying the deployed contract address and
// interface definition.
type Descriptor struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// LoadDescriptor reads and validates a contract descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "chain: read descriptor")
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, eris.Wrap(err, "chain: parse descriptor")
	}
	if d.Address == "" || len(d.ABI) == 0 {
		return nil, eris.New("chain: descriptor missing address or abi")
	}
	return &d, nil
}

// Config wires a Client.
type Config struct {
	RPCURL       string
	PrivateKey   string
	Descriptor   *Descriptor
	ChainID      int64
	GasLimit     uint64
	GasPriceGwei int64
	Timeout      time.Duration
}

// Client submits registry transactions with a locally-held key.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	gasLimit uint64
	gasPrice *big.Int
	timeout  time.Duration
	log      *zap.Logger
}

// AnchorResult carries the transaction hash and, when the matching event
// decoded, the on-chain-assigned identifier.
type AnchorResult struct {
	OnchainID *int64
	TxHash    string
}

// Dial connects to the RPC endpoint and prepares the signing account.
func Dial(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	parsedABI, err := abi.JSON(strings.NewReader(string(cfg.Descriptor.ABI)))
	if err != nil {
		return nil, eris.Wrap(err, "chain: parse abi")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, eris.Wrap(err, "chain: parse private key")
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, eris.Wrap(err, "chain: dial rpc")
	}

	return &Client{
		eth:      eth,
		abi:      parsedABI,
		contract: common.HexToAddress(cfg.Descriptor.Address),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.NewEIP155Signer(big.NewInt(cfg.ChainID)),
		gasLimit: cfg.GasLimit,
		gasPrice: new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9)),
		timeout:  cfg.Timeout,
		log:      log,
	}, nil
}

// Keccak computes the keccak256 hash of a string, hex-encoded.
func Keccak(text string) string {
	return crypto.Keccak256Hash([]byte(text)).Hex()
}

// ToUnixSeconds converts a deadline to epoch seconds; zero time maps to 0.
func ToUnixSeconds(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.Unix()
}

// CreateRFQ records a new RFQ on-chain and recovers the assigned id from
// the RFQCreated event when present.
func (c *Client) CreateRFQ(ctx context.Context, title, contentHash string, deadline int64, category string, budget int64, location string) (AnchorResult, error) {
	receipt, txHash, err := c.transact(ctx, "createRFQ",
		title, contentHash, big.NewInt(deadline), category, big.NewInt(budget), location)
	if err != nil {
		return AnchorResult{}, err
	}
	return AnchorResult{OnchainID: c.eventID(receipt, "RFQCreated"), TxHash: txHash}, nil
}

// CloseRFQ marks an RFQ closed on-chain.
func (c *Client) CloseRFQ(ctx context.Context, onchainID int64) (string, error) {
	_, txHash, err := c.transact(ctx, "closeRFQ", big.NewInt(onchainID))
	return txHash, err
}

// SubmitBid records a bid against an on-chain RFQ.
func (c *Client) SubmitBid(ctx context.Context, onchainID int64, price int64, docHash string) (AnchorResult, error) {
	receipt, txHash, err := c.transact(ctx, "submitBid",
		big.NewInt(onchainID), big.NewInt(price), docHash)
	if err != nil {
		return AnchorResult{}, err
	}
	return AnchorResult{OnchainID: c.eventID(receipt, "BidSubmitted"), TxHash: txHash}, nil
}

// transact builds, signs, submits, and waits for one contract call.
func (c *Client) transact(ctx context.Context, method string, args ...any) (*types.Receipt, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, "", eris.Wrapf(err, "chain: pack %s", method)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, "", eris.Wrap(err, "chain: fetch nonce")
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), c.gasLimit, c.gasPrice, data)
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, "", eris.Wrap(err, "chain: sign transaction")
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, "", eris.Wrapf(err, "chain: send %s", method)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, "", eris.Wrapf(err, "chain: wait receipt for %s", method)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, "", eris.Errorf("chain: %s reverted in tx %s", method, signed.Hash().Hex())
	}

	c.log.Info("anchored transaction",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed))

	return receipt, signed.Hash().Hex(), nil
}

// eventID recovers the uint256 `id` argument of the named event from the
// receipt logs. Absence or a decoding mismatch returns nil rather than an
// error so log-format drift never blocks the creation flow.
func (c *Client) eventID(receipt *types.Receipt, eventName string) *int64 {
	event, ok := c.abi.Events[eventName]
	if !ok {
		return nil
	}
	for _, lg := range receipt.Logs {
		if lg.Address != c.contract || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		// Indexed id lives in the topics; otherwise unpack the data section.
		if len(lg.Topics) > 1 {
			id := new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()
			return &id
		}
		vals, err := c.abi.Unpack(eventName, lg.Data)
		if err != nil {
			c.log.Warn("event decoding failed", zap.String("event", eventName), zap.Error(err))
			return nil
		}
		for _, v := range vals {
			if n, ok := v.(*big.Int); ok {
				id := n.Int64()
				return &id
			}
		}
	}
	return nil
}
