package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Investmeows/extendedbot/internal/exchange"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", "extendedbot-test/1.0", 5*time.Second, zap.NewNop()), srv
}

func TestOrderbookParsesTopOfBook(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info/markets/BTC-USD/orderbook" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Fatalf("expected api key header, got %q", got)
		}
		_, _ = w.Write([]byte(`{"data":{"ask":[{"price":"50010.5","qty":"1"}],"bid":[{"price":"50000.0","qty":"2"}]}}`))
	}))
	book, err := client.Orderbook(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("orderbook: %v", err)
	}
	if book.BestAsk != 50010.5 || book.BestBid != 50000.0 {
		t.Fatalf("unexpected book %+v", book)
	}
}

func TestOrderbookRejectsEmptyBook(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ask":[],"bid":[]}}`))
	}))
	if _, err := client.Orderbook(context.Background(), "BTC-USD"); err == nil {
		t.Fatalf("expected error for empty book")
	}
}

func TestMarketPrecision(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("market"); got != "ETH-USD" {
			t.Fatalf("expected market query, got %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"name":"ETH-USD","assetPrecision":6,"tradingConfig":{"minOrderSize":"0.01","minOrderSizeChange":"0.001","minPriceChange":"0.05"}}]}`))
	}))
	prec, err := client.MarketPrecision(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("market precision: %v", err)
	}
	if prec.AssetPrecision != 6 {
		t.Fatalf("expected asset precision 6, got %d", prec.AssetPrecision)
	}
	if prec.MinPriceChange.String() != "0.05" {
		t.Fatalf("expected price step 0.05, got %s", prec.MinPriceChange)
	}
	if !prec.Valid() {
		t.Fatalf("expected valid precision")
	}
}

func TestPositionsFiltersDust(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"market":"BTC-USD","size":"0.01","side":"LONG","markPrice":"100000","unrealisedPnl":"3.5","leverage":"10"},
			{"market":"ETH-USD","size":"0.000001","side":"SHORT","markPrice":"4000","unrealisedPnl":"0","leverage":"10"}
		]}`))
	}))
	positions, err := client.Positions(context.Background())
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected dust filtered, got %d positions", len(positions))
	}
	pos := positions[0]
	if pos.Market != "BTC-USD" || pos.Side != exchange.SideLong {
		t.Fatalf("unexpected position %+v", pos)
	}
	if pos.Notional() != 1000 {
		t.Fatalf("expected notional 1000, got %f", pos.Notional())
	}
}

func TestPlaceOrderOK(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.TimeInForce != "IOC" {
			t.Fatalf("expected IOC default, got %q", req.TimeInForce)
		}
		if req.ExternalID != "open-BTC-USD" {
			t.Fatalf("expected external id, got %q", req.ExternalID)
		}
		_, _ = w.Write([]byte(`{"status":"OK","data":{"id":12345,"externalId":"open-BTC-USD"}}`))
	}))
	id, err := client.PlaceOrder(context.Background(), exchange.Order{
		Market:        "BTC-USD",
		Side:          exchange.Buy,
		Qty:           "0.0199",
		Price:         "50375.00",
		ClientOrderID: "open-BTC-USD",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if id != "12345" {
		t.Fatalf("expected order id 12345, got %s", id)
	}
}

func TestPlaceOrderRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ERROR","error":{"message":"qty below minimum"}}`))
	}))
	_, err := client.PlaceOrder(context.Background(), exchange.Order{Market: "BTC-USD", Side: exchange.Buy})
	if !errors.Is(err, exchange.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestPlaceOrderBadRequestIsRejection(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid price", http.StatusBadRequest)
	}))
	_, err := client.PlaceOrder(context.Background(), exchange.Order{Market: "BTC-USD", Side: exchange.Buy})
	if !errors.Is(err, exchange.ErrRejected) {
		t.Fatalf("expected ErrRejected for 400, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	_, err := client.PlaceOrder(context.Background(), exchange.Order{Market: "BTC-USD", Side: exchange.Buy})
	if err == nil || errors.Is(err, exchange.ErrRejected) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestCancelAllAndSetLeverage(t *testing.T) {
	var cancelled, levered bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/order/massCancel":
			cancelled = true
		case "/user/leverage":
			if r.Method != http.MethodPatch {
				t.Fatalf("expected PATCH, got %s", r.Method)
			}
			levered = true
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	if err := client.CancelAll(context.Background()); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if err := client.SetLeverage(context.Background(), "BTC-USD", 10); err != nil {
		t.Fatalf("set leverage: %v", err)
	}
	if !cancelled || !levered {
		t.Fatalf("expected both endpoints hit")
	}
}
