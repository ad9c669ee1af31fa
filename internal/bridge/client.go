// Package bridge talks to the external swap daemon that matches
// cross-chain orders and runs the settlement protocol. The daemon
// exposes an authenticated JSON-RPC 2.0 endpoint.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/madschristensen99/hashield/pkg/logging"
)

// Bridge errors.
var (
	ErrDaemonError = errors.New("swap daemon returned an error")
)

// Client is a JSON-RPC client for the swap daemon.
type Client struct {
	rpcURL     string
	username   string
	password   string
	httpClient *http.Client
	log        *logging.Logger
}

// Config holds the daemon endpoint and credentials.
type Config struct {
	RPCURL   string
	Username string
	Password string
	Timeout  time.Duration
}

// NewClient creates a bridge client.
func NewClient(cfg *Config, log *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Component("bridge"),
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip, decoding the result into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	if params == nil {
		params = struct{}{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned HTTP %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s (%d) in %s", ErrDaemonError, rpcResp.Error.Message, rpcResp.Error.Code, method)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// OfferParams describes a swap offer to advertise.
type OfferParams struct {
	MinAmount       string `json:"minAmount"`
	MaxAmount       string `json:"maxAmount"`
	ExchangeRate    string `json:"exchangeRate"`
	EthAsset        string `json:"ethAsset"`
	RelayerEndpoint string `json:"relayerEndpoint,omitempty"`
	RelayerFee      string `json:"relayerFee,omitempty"`
}

// OfferResult is the daemon's acknowledgement of a new offer.
type OfferResult struct {
	OfferID string `json:"offerID"`
	PeerID  string `json:"peerID"`
}

// MakeOffer advertises a new swap offer on the network.
func (c *Client) MakeOffer(ctx context.Context, params *OfferParams) (*OfferResult, error) {
	if params.EthAsset == "" {
		params.EthAsset = "ETH"
	}

	var result OfferResult
	if err := c.call(ctx, "net_makeOffer", params, &result); err != nil {
		return nil, err
	}

	c.log.Info("offer advertised", "offerID", result.OfferID)
	return &result, nil
}

// TakeOffer takes an advertised offer, providing providesAmount of ETH.
func (c *Client) TakeOffer(ctx context.Context, peerID, offerID, providesAmount string) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.call(ctx, "net_takeOffer", map[string]string{
		"peerID":         peerID,
		"offerID":        offerID,
		"providesAmount": providesAmount,
	}, &result)
	if err != nil {
		return nil, err
	}

	c.log.Info("offer taken", "offerID", offerID, "peerID", peerID)
	return result, nil
}

// DiscoverPeers searches the network for peers advertising offers.
func (c *Client) DiscoverPeers(ctx context.Context, provides string, searchTime int) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.call(ctx, "net_discover", map[string]interface{}{
		"provides":   provides,
		"searchTime": searchTime,
	}, &result)
	return result, err
}

// QueryAll asks every known peer for its current offers.
func (c *Client) QueryAll(ctx context.Context, provides string, searchTime int) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.call(ctx, "net_queryAll", map[string]interface{}{
		"provides":   provides,
		"searchTime": searchTime,
	}, &result)
	return result, err
}

// OngoingSwaps returns in-progress swaps, optionally scoped to one offer.
func (c *Client) OngoingSwaps(ctx context.Context, offerID string) (json.RawMessage, error) {
	params := map[string]string{}
	if offerID != "" {
		params["offerID"] = offerID
	}
	var result json.RawMessage
	err := c.call(ctx, "swap_getOngoing", params, &result)
	return result, err
}

// PastSwaps returns completed swaps, optionally scoped to one offer.
func (c *Client) PastSwaps(ctx context.Context, offerID string) (json.RawMessage, error) {
	params := map[string]string{}
	if offerID != "" {
		params["offerID"] = offerID
	}
	var result json.RawMessage
	err := c.call(ctx, "swap_getPast", params, &result)
	return result, err
}

// ExchangeRate is the daemon's suggested market rate.
type ExchangeRate struct {
	ExchangeRate string `json:"exchangeRate"`
}

// SuggestedExchangeRate returns the market rate the daemon suggests
// for new offers.
func (c *Client) SuggestedExchangeRate(ctx context.Context) (*ExchangeRate, error) {
	var result ExchangeRate
	if err := c.call(ctx, "swap_suggestedExchangeRate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Balances returns the daemon's account addresses and balances.
func (c *Client) Balances(ctx context.Context) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.call(ctx, "personal_balances", nil, &result)
	return result, err
}
