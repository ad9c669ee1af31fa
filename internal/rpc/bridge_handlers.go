package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/madschristensen99/hashield/internal/storage"
)

var (
	ErrBridgeNotConfigured = errors.New("swap daemon bridge not configured")
)

// ordersList returns tracked liquidity orders, optionally filtered by
// status.
func (s *Server) ordersList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Status string `json:"status"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	orders, err := s.store.ListOrders(storage.OrderStatus(p.Status))
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ordersGet returns one tracked order by id.
func (s *Server) ordersGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	return s.store.GetOrder(p.ID)
}

// bridgeRate returns the swap daemon's suggested exchange rate.
func (s *Server) bridgeRate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	return s.bridge.SuggestedExchangeRate(ctx)
}

type searchParams struct {
	Provides   string `json:"provides"`
	SearchTime int    `json:"searchTime"`
}

func decodeSearchParams(params json.RawMessage) searchParams {
	p := searchParams{Provides: "XMR", SearchTime: 12}
	if len(params) > 0 {
		json.Unmarshal(params, &p)
	}
	return p
}

// bridgeDiscover searches the network for liquidity providers.
func (s *Server) bridgeDiscover(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	p := decodeSearchParams(params)
	return s.bridge.DiscoverPeers(ctx, p.Provides, p.SearchTime)
}

// bridgeOffers queries every known peer for its current offers.
func (s *Server) bridgeOffers(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	p := decodeSearchParams(params)
	return s.bridge.QueryAll(ctx, p.Provides, p.SearchTime)
}

// bridgeTake takes a counterparty's offer.
func (s *Server) bridgeTake(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}

	var p struct {
		PeerID         string `json:"peerID"`
		OfferID        string `json:"offerID"`
		ProvidesAmount string `json:"providesAmount"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.PeerID == "" || p.OfferID == "" || p.ProvidesAmount == "" {
		return nil, fmt.Errorf("peerID, offerID and providesAmount are required")
	}

	return s.bridge.TakeOffer(ctx, p.PeerID, p.OfferID, p.ProvidesAmount)
}

type offerScopeParams struct {
	OfferID string `json:"offerID"`
}

// bridgeOngoing returns in-progress swaps from the daemon.
func (s *Server) bridgeOngoing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	var p offerScopeParams
	if len(params) > 0 {
		json.Unmarshal(params, &p)
	}
	return s.bridge.OngoingSwaps(ctx, p.OfferID)
}

// bridgePast returns completed swaps from the daemon.
func (s *Server) bridgePast(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	var p offerScopeParams
	if len(params) > 0 {
		json.Unmarshal(params, &p)
	}
	return s.bridge.PastSwaps(ctx, p.OfferID)
}

// bridgeBalances returns the daemon's account balances.
func (s *Server) bridgeBalances(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.bridge == nil {
		return nil, ErrBridgeNotConfigured
	}
	return s.bridge.Balances(ctx)
}
