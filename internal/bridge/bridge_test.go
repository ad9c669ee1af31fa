package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/hashield/internal/storage"
	"github.com/madschristensen99/hashield/internal/txqueue"
	"github.com/madschristensen99/hashield/pkg/logging"
)

// daemonCall records one JSON-RPC request received by the fake daemon.
type daemonCall struct {
	Method string
	Params json.RawMessage
	Auth   bool
}

// fakeDaemon serves canned JSON-RPC responses keyed by method.
type fakeDaemon struct {
	results map[string]interface{}
	errors  map[string]*rpcError
	calls   []daemonCall
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{
		results: make(map[string]interface{}),
		errors:  make(map[string]*rpcError),
	}
}

func (d *fakeDaemon) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var generic struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      string          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&generic); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if generic.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", generic.JSONRPC)
		}
		if generic.ID == "" {
			t.Error("expected a request id")
		}

		_, _, hasAuth := r.BasicAuth()
		d.calls = append(d.calls, daemonCall{
			Method: generic.Method,
			Params: generic.Params,
			Auth:   hasAuth,
		})

		resp := rpcResponse{JSONRPC: "2.0", ID: generic.ID}
		if rpcErr, ok := d.errors[generic.Method]; ok {
			resp.Error = rpcErr
		} else if result, ok := d.results[generic.Method]; ok {
			raw, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("failed to marshal canned result: %v", err)
			}
			resp.Result = raw
		} else {
			resp.Result = json.RawMessage(`{}`)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}
}

func (d *fakeDaemon) lastCall(t *testing.T, method string) daemonCall {
	t.Helper()
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].Method == method {
			return d.calls[i]
		}
	}
	t.Fatalf("no call recorded for %s", method)
	return daemonCall{}
}

func newTestClient(t *testing.T, daemon *fakeDaemon) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(daemon.handler(t))
	t.Cleanup(srv.Close)

	client := NewClient(&Config{
		RPCURL:   srv.URL,
		Username: "hashield",
		Password: "secret",
	}, logging.New(nil))
	return client, srv
}

func TestMakeOffer(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.results["net_makeOffer"] = OfferResult{OfferID: "offer-1", PeerID: "peer-1"}
	client, _ := newTestClient(t, daemon)

	result, err := client.MakeOffer(context.Background(), &OfferParams{
		MinAmount:    "0.95",
		MaxAmount:    "1.05",
		ExchangeRate: "0.05",
	})
	if err != nil {
		t.Fatalf("MakeOffer failed: %v", err)
	}
	if result.OfferID != "offer-1" {
		t.Errorf("expected offer-1, got %q", result.OfferID)
	}

	call := daemon.lastCall(t, "net_makeOffer")
	if !call.Auth {
		t.Error("expected basic auth on the request")
	}

	var params OfferParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		t.Fatalf("failed to decode offer params: %v", err)
	}
	if params.EthAsset != "ETH" {
		t.Errorf("expected default ethAsset ETH, got %q", params.EthAsset)
	}
	if params.MinAmount != "0.95" || params.MaxAmount != "1.05" {
		t.Errorf("unexpected amounts: %s/%s", params.MinAmount, params.MaxAmount)
	}
}

func TestTakeOfferParams(t *testing.T) {
	daemon := newFakeDaemon()
	client, _ := newTestClient(t, daemon)

	if _, err := client.TakeOffer(context.Background(), "peer-9", "offer-9", "1.5"); err != nil {
		t.Fatalf("TakeOffer failed: %v", err)
	}

	call := daemon.lastCall(t, "net_takeOffer")
	var params map[string]string
	if err := json.Unmarshal(call.Params, &params); err != nil {
		t.Fatalf("failed to decode params: %v", err)
	}
	if params["peerID"] != "peer-9" || params["offerID"] != "offer-9" || params["providesAmount"] != "1.5" {
		t.Errorf("unexpected params: %v", params)
	}
}

func TestDaemonErrorSurfaced(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.errors["swap_suggestedExchangeRate"] = &rpcError{Code: -32000, Message: "no market data"}
	client, _ := newTestClient(t, daemon)

	_, err := client.SuggestedExchangeRate(context.Background())
	if !errors.Is(err, ErrDaemonError) {
		t.Fatalf("expected ErrDaemonError, got %v", err)
	}
}

func TestDiscoverAndQueryParams(t *testing.T) {
	daemon := newFakeDaemon()
	client, _ := newTestClient(t, daemon)

	if _, err := client.DiscoverPeers(context.Background(), "XMR", 12); err != nil {
		t.Fatalf("DiscoverPeers failed: %v", err)
	}
	call := daemon.lastCall(t, "net_discover")
	var params map[string]interface{}
	if err := json.Unmarshal(call.Params, &params); err != nil {
		t.Fatalf("failed to decode params: %v", err)
	}
	if params["provides"] != "XMR" {
		t.Errorf("unexpected provides: %v", params["provides"])
	}
	if params["searchTime"] != float64(12) {
		t.Errorf("unexpected searchTime: %v", params["searchTime"])
	}

	if _, err := client.QueryAll(context.Background(), "XMR", 3); err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	daemon.lastCall(t, "net_queryAll")
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	dir, err := os.MkdirTemp("", "hashield-bridge-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.New(&storage.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testOperation(value *big.Int) *txqueue.PendingOperation {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return &txqueue.PendingOperation{
		ID: "op-1",
		Request: txqueue.Request{
			From:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
			To:    &to,
			Value: value,
		},
	}
}

func TestCreateForOperation(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.results["swap_suggestedExchangeRate"] = ExchangeRate{ExchangeRate: "0.05"}
	daemon.results["net_makeOffer"] = OfferResult{OfferID: "offer-42", PeerID: "peer-42"}
	client, _ := newTestClient(t, daemon)
	store := newTestStorage(t)

	svc := NewOrderService(store, client, &OrderConfig{
		RelayerEndpoint: "http://relayer.local:8080",
		RelayerFee:      "0.001",
	}, logging.New(nil))

	op := testOperation(big.NewInt(2e18)) // 2 ETH
	if err := svc.CreateForOperation(context.Background(), op); err != nil {
		t.Fatalf("CreateForOperation failed: %v", err)
	}

	call := daemon.lastCall(t, "net_makeOffer")
	var params OfferParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		t.Fatalf("failed to decode offer params: %v", err)
	}

	// 2 ETH at 0.05 targets 0.1 with a 5% band either side.
	min, _ := strconv.ParseFloat(params.MinAmount, 64)
	max, _ := strconv.ParseFloat(params.MaxAmount, 64)
	if min < 0.0949 || min > 0.0951 {
		t.Errorf("unexpected minAmount %v", min)
	}
	if max < 0.1049 || max > 0.1051 {
		t.Errorf("unexpected maxAmount %v", max)
	}
	if params.RelayerEndpoint != "http://relayer.local:8080" {
		t.Errorf("unexpected relayerEndpoint %q", params.RelayerEndpoint)
	}
	if params.RelayerFee != "0.001" {
		t.Errorf("unexpected relayerFee %q", params.RelayerFee)
	}

	order, err := store.GetOrder("op-1")
	if err != nil {
		t.Fatalf("order not recorded: %v", err)
	}
	if order.SwapID != "offer-42" {
		t.Errorf("expected swap id offer-42, got %q", order.SwapID)
	}
	if order.Status != storage.OrderStatusPending {
		t.Errorf("expected pending status, got %q", order.Status)
	}
	if order.Amount != big.NewInt(2e18).String() {
		t.Errorf("unexpected amount %q", order.Amount)
	}
}

func TestCreateForOperationDefaultRate(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.errors["swap_suggestedExchangeRate"] = &rpcError{Code: -32000, Message: "unavailable"}
	daemon.results["net_makeOffer"] = OfferResult{OfferID: "offer-7"}
	client, _ := newTestClient(t, daemon)
	store := newTestStorage(t)

	svc := NewOrderService(store, client, &OrderConfig{DefaultExchangeRate: 0.04}, logging.New(nil))

	if err := svc.CreateForOperation(context.Background(), testOperation(big.NewInt(1e18))); err != nil {
		t.Fatalf("CreateForOperation failed: %v", err)
	}

	call := daemon.lastCall(t, "net_makeOffer")
	var params OfferParams
	if err := json.Unmarshal(call.Params, &params); err != nil {
		t.Fatalf("failed to decode offer params: %v", err)
	}
	if params.ExchangeRate != "0.04" {
		t.Errorf("expected default rate 0.04, got %q", params.ExchangeRate)
	}
}

func TestCreateForOperationNoRate(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.errors["swap_suggestedExchangeRate"] = &rpcError{Code: -32000, Message: "unavailable"}
	client, _ := newTestClient(t, daemon)
	store := newTestStorage(t)

	svc := NewOrderService(store, client, &OrderConfig{}, logging.New(nil))

	err := svc.CreateForOperation(context.Background(), testOperation(big.NewInt(1e18)))
	if !errors.Is(err, ErrNoExchangeRate) {
		t.Fatalf("expected ErrNoExchangeRate, got %v", err)
	}
}

func TestCreateForOperationZeroValue(t *testing.T) {
	daemon := newFakeDaemon()
	client, _ := newTestClient(t, daemon)
	store := newTestStorage(t)

	svc := NewOrderService(store, client, &OrderConfig{DefaultExchangeRate: 0.05}, logging.New(nil))

	if err := svc.CreateForOperation(context.Background(), testOperation(big.NewInt(0))); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}
