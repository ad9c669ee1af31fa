package escrow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	eip712DomainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	relayerWithdrawalTypeHash = crypto.Keccak256([]byte(
		"RelayerWithdrawal(bytes32 orderHash,bytes32 secret,address relayer,uint256 fee,uint32 salt)"))
)

// relayerDigest builds the EIP-712 signing digest for a relayer
// withdrawal authorization.
func (c *Client) relayerDigest(orderHash, secret [32]byte, relayer common.Address, fee *big.Int, salt uint32) []byte {
	domainSeparator := crypto.Keccak256(
		eip712DomainTypeHash,
		crypto.Keccak256([]byte(c.domainName)),
		crypto.Keccak256([]byte(c.domainVersion)),
		common.LeftPadBytes(c.client.ChainID().Bytes(), 32),
		common.LeftPadBytes(c.escrowAddr.Bytes(), 32),
	)

	structHash := crypto.Keccak256(
		relayerWithdrawalTypeHash,
		orderHash[:],
		secret[:],
		common.LeftPadBytes(relayer.Bytes(), 32),
		common.LeftPadBytes(fee.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(uint64(salt)).Bytes(), 32),
	)

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
}

// WithdrawViaRelayer authorizes and submits a relayer-mediated
// withdrawal: the relayer key signs the typed authorization, then
// calls withdrawWithRelayer so the contract pays the fee out of the
// escrowed amount.
func (c *Client) WithdrawViaRelayer(ctx context.Context, orderHash, secret [32]byte, fee *big.Int, salt uint32) (*types.Receipt, error) {
	if c.relayerKey == nil {
		return nil, ErrNoRelayerKey
	}

	digest := c.relayerDigest(orderHash, secret, c.relayerAddr, fee, salt)

	sig, err := crypto.Sign(digest, c.relayerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign withdrawal authorization: %w", err)
	}

	var r, s [32]byte
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[64] + 27

	data, err := c.escrowABI.Pack("withdrawWithRelayer",
		orderHash, secret, c.relayerAddr, fee, salt, v, r, s)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdrawWithRelayer: %w", err)
	}

	c.log.Info("submitting relayer withdrawal",
		"orderHash", fmt.Sprintf("%x", orderHash),
		"fee", fee.String(),
		"salt", salt)

	return c.transact(ctx, c.escrowAddr, nil, data, "withdrawWithRelayer")
}
