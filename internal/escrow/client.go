package escrow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/madschristensen99/hashield/internal/evm"
	"github.com/madschristensen99/hashield/pkg/logging"
)

const immutablesTuple = `{"name":"orderHash","type":"bytes32"},{"name":"hashlock","type":"bytes32"},{"name":"maker","type":"uint256"},{"name":"taker","type":"uint256"},{"name":"token","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"safetyDeposit","type":"uint256"},{"name":"timelocks","type":"uint256"}`

const orderTuple = `{"name":"salt","type":"uint256"},{"name":"maker","type":"uint256"},{"name":"receiver","type":"uint256"},{"name":"makerAsset","type":"uint256"},{"name":"takerAsset","type":"uint256"},{"name":"makingAmount","type":"uint256"},{"name":"takingAmount","type":"uint256"},{"name":"makerTraits","type":"uint256"}`

var resolverABIJSON = `[
	{"type":"function","name":"deploySrc","stateMutability":"payable","inputs":[
		{"name":"immutables","type":"tuple","components":[` + immutablesTuple + `]},
		{"name":"order","type":"tuple","components":[` + orderTuple + `]},
		{"name":"r","type":"bytes32"},
		{"name":"vs","type":"bytes32"},
		{"name":"amount","type":"uint256"},
		{"name":"takerTraits","type":"uint256"},
		{"name":"args","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"deployDst","stateMutability":"payable","inputs":[
		{"name":"dstImmutables","type":"tuple","components":[` + immutablesTuple + `]},
		{"name":"srcCancellationTimestamp","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[
		{"name":"escrow","type":"address"},
		{"name":"secret","type":"bytes32"},
		{"name":"immutables","type":"tuple","components":[` + immutablesTuple + `]}],"outputs":[]},
	{"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[
		{"name":"escrow","type":"address"},
		{"name":"immutables","type":"tuple","components":[` + immutablesTuple + `]}],"outputs":[]}
]`

var escrowABIJSON = `[
	{"type":"function","name":"createEscrow","stateMutability":"payable","inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"maker","type":"address"},
		{"name":"taker","type":"address"},
		{"name":"withdrawalPeriod","type":"uint48"},
		{"name":"cancellationPeriod","type":"uint48"},
		{"name":"extraData","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"withdrawWithRelayer","stateMutability":"nonpayable","inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"secret","type":"bytes32"},
		{"name":"relayer","type":"address"},
		{"name":"fee","type":"uint256"},
		{"name":"salt","type":"uint32"},
		{"name":"v","type":"uint8"},
		{"name":"r","type":"bytes32"},
		{"name":"s","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"cancelWithSecret","stateMutability":"nonpayable","inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"refundSecret","type":"bytes32"}],"outputs":[]}
]`

// Config identifies the deployed contracts and the relayer identity.
type Config struct {
	ResolverAddress common.Address
	EscrowAddress   common.Address
	RelayerKey      *ecdsa.PrivateKey
	DomainName      string
	DomainVersion   string
}

// Client executes resolver and settlement contract calls.
type Client struct {
	client       evm.Client
	resolverAddr common.Address
	escrowAddr   common.Address
	relayerKey   *ecdsa.PrivateKey
	relayerAddr  common.Address

	domainName    string
	domainVersion string

	resolverABI abi.ABI
	escrowABI   abi.ABI
	log         *logging.Logger
}

// NewClient creates an escrow client.
func NewClient(client evm.Client, cfg *Config, log *logging.Logger) (*Client, error) {
	resolverABI, err := abi.JSON(strings.NewReader(resolverABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolver ABI: %w", err)
	}
	escrowABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	domainName := cfg.DomainName
	if domainName == "" {
		domainName = "XMREscrowSrc"
	}
	domainVersion := cfg.DomainVersion
	if domainVersion == "" {
		domainVersion = "1"
	}

	c := &Client{
		client:        client,
		resolverAddr:  cfg.ResolverAddress,
		escrowAddr:    cfg.EscrowAddress,
		relayerKey:    cfg.RelayerKey,
		domainName:    domainName,
		domainVersion: domainVersion,
		resolverABI:   resolverABI,
		escrowABI:     escrowABI,
		log:           log.Component("escrow"),
	}
	if cfg.RelayerKey != nil {
		c.relayerAddr = crypto.PubkeyToAddress(cfg.RelayerKey.PublicKey)
	}
	return c, nil
}

// RelayerAddress returns the address the relayer key signs as.
func (c *Client) RelayerAddress() common.Address {
	return c.relayerAddr
}

// DeploySource deploys the source-chain escrow for a signed order.
func (c *Client) DeploySource(ctx context.Context, imm *Immutables, order *Order, sig *SignatureParts, amount, takerTraits *big.Int, args []byte, value *big.Int) (*types.Receipt, error) {
	data, err := c.resolverABI.Pack("deploySrc", *imm, *order, sig.R, sig.VS, amount, takerTraits, args)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deploySrc: %w", err)
	}
	return c.transact(ctx, c.resolverAddr, value, data, "deploySrc")
}

// DeployDestination deploys the destination-chain escrow.
func (c *Client) DeployDestination(ctx context.Context, imm *Immutables, srcCancellation *big.Int, value *big.Int) (*types.Receipt, error) {
	data, err := c.resolverABI.Pack("deployDst", *imm, srcCancellation)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deployDst: %w", err)
	}
	return c.transact(ctx, c.resolverAddr, value, data, "deployDst")
}

// Withdraw reveals a claim secret to pull funds from a deployed
// escrow.
func (c *Client) Withdraw(ctx context.Context, escrow common.Address, secret [32]byte, imm *Immutables) (*types.Receipt, error) {
	data, err := c.resolverABI.Pack("withdraw", escrow, secret, *imm)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdraw: %w", err)
	}
	return c.transact(ctx, c.resolverAddr, nil, data, "withdraw")
}

// Cancel returns escrowed funds after the timelock has expired.
func (c *Client) Cancel(ctx context.Context, escrow common.Address, imm *Immutables) (*types.Receipt, error) {
	data, err := c.resolverABI.Pack("cancel", escrow, *imm)
	if err != nil {
		return nil, fmt.Errorf("failed to pack cancel: %w", err)
	}
	return c.transact(ctx, c.resolverAddr, nil, data, "cancel")
}

// CreateEscrow opens an escrow directly on the settlement contract.
func (c *Client) CreateEscrow(ctx context.Context, orderHash [32]byte, token common.Address, amount *big.Int, extraData []byte, value *big.Int) (*types.Receipt, error) {
	data, err := c.escrowABI.Pack("createEscrow",
		orderHash, token, amount,
		common.Address{}, common.Address{},
		big.NewInt(0), big.NewInt(0),
		extraData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createEscrow: %w", err)
	}
	return c.transact(ctx, c.escrowAddr, value, data, "createEscrow")
}

// CancelWithSecret cancels an escrow by revealing its refund secret.
// Unlike Cancel this works before the timelock expires; revealing the
// refund preimage proves the canceller is the order's creator.
func (c *Client) CancelWithSecret(ctx context.Context, orderHash, refundSecret [32]byte) (*types.Receipt, error) {
	data, err := c.escrowABI.Pack("cancelWithSecret", orderHash, refundSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to pack cancelWithSecret: %w", err)
	}
	return c.transact(ctx, c.escrowAddr, nil, data, "cancelWithSecret")
}

// transact submits a call signed with the relayer key and waits for
// the receipt, mapping a failed status to ErrExecutionReverted.
func (c *Client) transact(ctx context.Context, to common.Address, value *big.Int, data []byte, label string) (*types.Receipt, error) {
	if c.relayerKey == nil {
		return nil, ErrNoRelayerKey
	}

	receipt, err := evm.SendAndWait(ctx, c.client, c.relayerKey, &to, value, data, 0)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", label, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %s in tx %s", ErrExecutionReverted, label, receipt.TxHash.Hex())
	}

	c.log.Info("escrow call mined", "call", label, "tx", receipt.TxHash.Hex())
	return receipt, nil
}
