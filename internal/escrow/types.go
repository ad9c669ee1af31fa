// Package escrow drives the on-chain escrow contracts that settle
// cross-chain orders: the resolver that deploys source and destination
// escrows, and the settlement contract with its hash-lock withdrawal
// and cancellation paths.
package escrow

import (
	"errors"
	"math/big"
)

// Escrow errors.
var (
	ErrExecutionReverted = errors.New("escrow call reverted")
	ErrNoRelayerKey      = errors.New("no relayer key configured")
)

// Immutables is the escrow parameter tuple. Addresses are carried as
// uint256 the way the settlement protocol encodes them.
type Immutables struct {
	OrderHash     [32]byte
	Hashlock      [32]byte
	Maker         *big.Int
	Taker         *big.Int
	Token         *big.Int
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     *big.Int
}

// Order is the signed limit order tuple a source escrow is deployed
// against.
type Order struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// SignatureParts is the compact r/vs form of the maker's order
// signature.
type SignatureParts struct {
	R  [32]byte
	VS [32]byte
}
