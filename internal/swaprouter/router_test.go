package swaprouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/pkg/errors"

	"github.com/volbot/volcluster/internal/chain"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func encodedSwapTx(t *testing.T, payer solana.PublicKey) string {
	t.Helper()
	ix := system.NewTransferInstruction(1, payer, payer).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("inputMint") != solMint || q.Get("outputMint") != usdcMint {
			t.Errorf("unexpected mints: %s -> %s", q.Get("inputMint"), q.Get("outputMint"))
		}
		if q.Get("amount") != "50000000" {
			t.Errorf("unexpected amount %s", q.Get("amount"))
		}
		if q.Get("slippageBps") != "100" {
			t.Errorf("unexpected slippage %s", q.Get("slippageBps"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"inputMint":"` + solMint + `","outputMint":"` + usdcMint + `","inAmount":"50000000","outAmount":"123456","routePlan":[]}`))
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	quote, err := r.Quote(context.Background(), solMint, usdcMint, 50_000_000, 100)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.InAmount != 50_000_000 || quote.OutAmount != 123456 {
		t.Fatalf("parsed amounts %d/%d", quote.InAmount, quote.OutAmount)
	}
	// Raw must carry the aggregator response untouched for the swap build
	var echo map[string]any
	if err := json.Unmarshal(quote.Raw, &echo); err != nil {
		t.Fatalf("raw not preserved: %v", err)
	}
	if _, ok := echo["routePlan"]; !ok {
		t.Fatal("raw quote lost fields")
	}
}

func TestQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no route found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	_, err := r.Quote(context.Background(), solMint, usdcMint, 1, 100)
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("want ErrRouteUnavailable, got %v", err)
	}
}

func TestQuoteUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	_, err := r.Quote(context.Background(), solMint, usdcMint, 1, 100)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	if errors.Is(err, ErrRouteUnavailable) {
		t.Fatal("5xx must not be classified as route unavailable")
	}
}

func TestBuildTransactionPriorityFeeFallback(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	encoded := encodedSwapTx(t, payer)

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if _, withFee := body["prioritizationFeeLamports"]; withFee {
			http.Error(w, `{"error":"invalid field prioritizationFeeLamports"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"swapTransaction": encoded})
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	quote := &Quote{Raw: json.RawMessage(`{}`)}
	unsigned, err := r.BuildTransaction(context.Background(), quote, payer)
	if err != nil {
		t.Fatalf("build with fallback: %v", err)
	}
	if unsigned.Tx == nil {
		t.Fatal("no transaction decoded")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected exactly 2 build attempts, got %d", got)
	}
}

func TestBuildTransactionDecodesWithoutJSONContentType(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	encoded := encodedSwapTx(t, payer)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		json.NewEncoder(w).Encode(map[string]string{"swapTransaction": encoded})
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	unsigned, err := r.BuildTransaction(context.Background(), &Quote{Raw: json.RawMessage(`{}`)}, payer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if unsigned.Tx == nil {
		t.Fatal("no transaction decoded")
	}
}

func TestBuildTransactionNoRetryOnOtherErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, `{"error":"insufficient funds"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL}, nil)
	_, err := r.BuildTransaction(context.Background(), &Quote{Raw: json.RawMessage(`{}`)}, solana.NewWallet().PublicKey())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("unrelated build errors must not retry, got %d attempts", got)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret123" {
			t.Errorf("missing api key header, got %q", r.Header.Get("x-api-key"))
		}
		w.Write([]byte(`{"inputMint":"a","outputMint":"b","inAmount":"1","outAmount":"1"}`))
	}))
	defer srv.Close()

	r := New(Config{BaseURL: srv.URL, APIKey: "secret123"}, nil)
	if _, err := r.Quote(context.Background(), solMint, usdcMint, 1, 100); err != nil {
		t.Fatalf("quote: %v", err)
	}
}

type fakeSender struct {
	sendErr error
	waitErr error
}

func (f *fakeSender) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, f.sendErr
}

func (f *fakeSender) WaitForConfirmation(ctx context.Context, sig solana.Signature) (*chain.Confirmation, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &chain.Confirmation{Signature: sig, Slot: 42}, nil
}

func TestSubmitPreservesChainSentinels(t *testing.T) {
	r := New(Config{BaseURL: "http://127.0.0.1:0"}, &fakeSender{waitErr: chain.ErrConfirmTimeout})
	_, err := r.Submit(context.Background(), &solana.Transaction{})
	if !errors.Is(err, chain.ErrConfirmTimeout) {
		t.Fatalf("confirm timeout sentinel lost: %v", err)
	}

	r = New(Config{BaseURL: "http://127.0.0.1:0"}, &fakeSender{waitErr: chain.ErrTransactionRejected})
	_, err = r.Submit(context.Background(), &solana.Transaction{})
	if !errors.Is(err, chain.ErrTransactionRejected) {
		t.Fatalf("rejection sentinel lost: %v", err)
	}
}
