// Package chain provides the write-path client for the QuestBadges contract.
// The contract is treated as opaque: this client calls exactly two functions
// (registerQuest, mintBadge) and parses one event (BadgeMinted).
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/types"
)

const questBadgesABI = `[
	{"type":"function","name":"registerQuest","stateMutability":"nonpayable","inputs":[
		{"name":"questId","type":"uint256"},
		{"name":"name","type":"string"},
		{"name":"description","type":"string"},
		{"name":"uri","type":"string"},
		{"name":"repeatable","type":"bool"}],"outputs":[]},
	{"type":"function","name":"mintBadge","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"questId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"BadgeMinted","inputs":[
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"questId","type":"uint256","indexed":true}],"anonymous":false}
]`

// MintReceipt is the outcome of a confirmed badge mint. TokenID is empty when
// no parseable BadgeMinted event was found in the receipt; settlement still
// proceeds in that case.
type MintReceipt struct {
	TxHash  string
	TokenID string
}

// BadgeContract is the injected chain client. It is constructed once at
// startup and shared; it holds no mutable state beyond the underlying RPC
// connection.
type BadgeContract struct {
	client      *ethclient.Client
	contract    common.Address
	key         *ecdsa.PrivateKey
	operator    common.Address
	chainID     *big.Int
	abi         abi.ABI
	mintTimeout time.Duration
	logger      *logging.Logger
}

// NewBadgeContract creates a chain client. A missing contract address or
// operator key is a configuration error: fatal for any chain-writing
// operation and never retried.
func NewBadgeContract(cfg *config.ChainConfig, logger *logging.Logger) (*BadgeContract, error) {
	if cfg.Address == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeChainNotConfigured,
			Message: "QuestBadges contract address is not configured",
		}
	}
	if cfg.OperatorKey == "" {
		return nil, &types.ServiceError{
			Code:    types.CodeChainNotConfigured,
			Message: "operator private key is not configured",
		}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint %s: %w", cfg.RPCURL, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(questBadgesABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse QuestBadges ABI: %w", err)
	}

	mintTimeout := cfg.MintTimeout
	if mintTimeout <= 0 {
		mintTimeout = 2 * time.Minute
	}

	return &BadgeContract{
		client:      client,
		contract:    common.HexToAddress(cfg.Address),
		key:         key,
		operator:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:     big.NewInt(cfg.ChainID),
		abi:         parsedABI,
		mintTimeout: mintTimeout,
		logger:      logger.WithField("component", "chain"),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *BadgeContract) Close() {
	c.client.Close()
}

// MintBadge mints a badge for the wallet and waits for transaction finality.
// It returns only after the transaction is confirmed successful; a revert or
// timeout leaves no trace in this process and the caller may retry.
func (c *BadgeContract) MintBadge(ctx context.Context, to string, questID int64) (*MintReceipt, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid EVM address: %s", to)
	}
	recipient := common.HexToAddress(to)

	calldata, err := c.abi.Pack("mintBadge", recipient, big.NewInt(questID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack mintBadge call: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.mintTimeout)
	defer cancel()

	receipt, err := c.sendAndWait(ctx, calldata)
	if err != nil {
		return nil, fmt.Errorf("mintBadge transaction failed: %w", err)
	}

	result := &MintReceipt{TxHash: receipt.TxHash.Hex()}
	if tokenID, ok := c.parseBadgeMinted(receipt); ok {
		result.TokenID = tokenID.String()
	} else {
		c.logger.WithField("txHash", result.TxHash).Warn("No parseable BadgeMinted event in receipt")
	}

	c.logger.WithFields(map[string]interface{}{
		"to":      recipient.Hex(),
		"questId": questID,
		"txHash":  result.TxHash,
		"tokenId": result.TokenID,
	}).Info("Badge minted")

	return result, nil
}

// RegisterQuest mirrors a quest definition on-chain under its database id.
func (c *BadgeContract) RegisterQuest(ctx context.Context, questID int64, name, description, uri string, repeatable bool) (string, error) {
	calldata, err := c.abi.Pack("registerQuest", big.NewInt(questID), name, description, uri, repeatable)
	if err != nil {
		return "", fmt.Errorf("failed to pack registerQuest call: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.mintTimeout)
	defer cancel()

	receipt, err := c.sendAndWait(ctx, calldata)
	if err != nil {
		return "", fmt.Errorf("registerQuest transaction failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"questId": questID,
		"txHash":  receipt.TxHash.Hex(),
	}).Info("Quest registered on-chain")

	return receipt.TxHash.Hex(), nil
}

func (c *BadgeContract) sendAndWait(ctx context.Context, calldata []byte) (*ethtypes.Receipt, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.operator,
		To:   &c.contract,
		Data: calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit, gasPrice, calldata)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}

// parseBadgeMinted scans receipt logs for the BadgeMinted event and extracts
// the minted token id from its indexed topics.
func (c *BadgeContract) parseBadgeMinted(receipt *ethtypes.Receipt) (*big.Int, bool) {
	eventID := c.abi.Events["BadgeMinted"].ID

	for _, entry := range receipt.Logs {
		if entry.Address != c.contract {
			continue
		}
		if len(entry.Topics) < 3 || entry.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(entry.Topics[2].Bytes()), true
	}
	return nil, false
}
