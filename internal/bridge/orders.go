package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/madschristensen99/hashield/internal/storage"
	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/helpers"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// Order errors.
var (
	ErrNoExchangeRate = errors.New("no exchange rate available")
	ErrZeroAmount     = errors.New("order amount must be positive")
)

// offerBandRatio widens the advertised min/max around the target
// amount so counterparties with slightly different pricing still match.
const offerBandRatio = 0.05

// OrderService converts value-bearing wallet operations into liquidity
// orders advertised through the swap daemon.
type OrderService struct {
	store           *storage.Storage
	client          *Client
	relayerEndpoint string
	relayerFee      string
	defaultRate     float64
	log             *logging.Logger
}

// OrderConfig holds order placement settings.
type OrderConfig struct {
	RelayerEndpoint string
	RelayerFee      string
	// DefaultExchangeRate is used when the daemon has no suggestion.
	DefaultExchangeRate float64
}

// NewOrderService creates an order service backed by the given daemon
// client and storage.
func NewOrderService(store *storage.Storage, client *Client, cfg *OrderConfig, log *logging.Logger) *OrderService {
	return &OrderService{
		store:           store,
		client:          client,
		relayerEndpoint: cfg.RelayerEndpoint,
		relayerFee:      cfg.RelayerFee,
		defaultRate:     cfg.DefaultExchangeRate,
		log:             log.Component("orders"),
	}
}

// CreateForOperation advertises a liquidity offer sized to the
// operation's value and records the resulting order. Implements the
// transaction queue's order placement hook.
func (s *OrderService) CreateForOperation(ctx context.Context, op *txqueue.PendingOperation) error {
	if op.Request.Value == nil || op.Request.Value.Sign() <= 0 {
		return ErrZeroAmount
	}

	rate, err := s.exchangeRate(ctx)
	if err != nil {
		return err
	}

	ethAmount := weiToEthFloat(op.Request.Value)
	target := ethAmount * rate
	minAmount := target * (1 - offerBandRatio)
	maxAmount := target * (1 + offerBandRatio)

	result, err := s.client.MakeOffer(ctx, &OfferParams{
		MinAmount:       formatAmount(minAmount),
		MaxAmount:       formatAmount(maxAmount),
		ExchangeRate:    formatAmount(rate),
		EthAsset:        "ETH",
		RelayerEndpoint: s.relayerEndpoint,
		RelayerFee:      s.relayerFee,
	})
	if err != nil {
		return fmt.Errorf("failed to advertise offer for operation %s: %w", op.ID, err)
	}

	order := &storage.Order{
		ID:            op.ID,
		OrderHash:     result.OfferID,
		Status:        storage.OrderStatusPending,
		Amount:        op.Request.Value.String(),
		WalletAddress: op.Request.From.Hex(),
		SwapID:        result.OfferID,
	}
	if err := s.store.CreateOrder(order); err != nil {
		return fmt.Errorf("failed to record order for operation %s: %w", op.ID, err)
	}

	s.log.Info("liquidity order placed",
		"operation", op.ID,
		"offerID", result.OfferID,
		"amount", helpers.FormatWei(op.Request.Value))
	return nil
}

// exchangeRate asks the daemon for the current market rate, falling
// back to the configured default.
func (s *OrderService) exchangeRate(ctx context.Context) (float64, error) {
	suggestion, err := s.client.SuggestedExchangeRate(ctx)
	if err == nil && suggestion.ExchangeRate != "" {
		rate, parseErr := strconv.ParseFloat(suggestion.ExchangeRate, 64)
		if parseErr == nil && rate > 0 {
			return rate, nil
		}
	}

	if s.defaultRate > 0 {
		s.log.Warn("using default exchange rate", "rate", s.defaultRate)
		return s.defaultRate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoExchangeRate, err)
	}
	return 0, ErrNoExchangeRate
}

func weiToEthFloat(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	v, _ := f.Float64()
	return v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
