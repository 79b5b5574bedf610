// Package swaprouter adapts the external swap aggregator: price a route, get
// back a signable transaction, submit it. The engine treats everything in here
// as a collaborator; all failures surface as cycle failures with a stable
// error kind and are never retried automatically (one documented exception:
// the priority-fee rebuild, see BuildTransaction).
package swaprouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/volbot/volcluster/internal/chain"
	"github.com/volbot/volcluster/pkg/logger"
	"github.com/volbot/volcluster/pkg/ratelimit"
)

var (
	// ErrRouteUnavailable: the aggregator has no route for the requested pair
	// or rejected the quote parameters.
	ErrRouteUnavailable = errors.New("swaprouter: route unavailable")
	// ErrUpstream: the aggregator failed for reasons other than routing.
	ErrUpstream = errors.New("swaprouter: upstream error")
)

const (
	publicBaseURL = "https://quote-api.jup.ag/v6"
	keyedBaseURL  = "https://api.jup.ag/ultra"
)

// Sender is the chain-side half of Submit. *chain.Client satisfies it.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature) (*chain.Confirmation, error)
}

type Config struct {
	BaseURL string // override for tests; otherwise derived from APIKey presence
	APIKey  string
	Timeout time.Duration
}

type Router struct {
	http    *resty.Client
	apiKey  string
	sender  Sender
	limiter ratelimit.Limiter
}

func New(cfg Config, sender Sender) *Router {
	base := cfg.BaseURL
	if base == "" {
		if cfg.APIKey != "" {
			base = keyedBaseURL
		} else {
			base = publicBaseURL
		}
	}
	base = strings.TrimSuffix(base, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout)

	// the public endpoint enforces a much tighter quota than the keyed one
	limit := 50
	if cfg.APIKey == "" {
		limit = 8
	}
	return &Router{
		http:    client,
		apiKey:  cfg.APIKey,
		sender:  sender,
		limiter: ratelimit.NewSlidingWindow(limit, time.Second),
	}
}

// Quote is the aggregator's route answer. Raw carries the full response body,
// which the swap build endpoint wants echoed back verbatim.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int
	Raw         json.RawMessage
}

// UnsignedTransaction wraps the decoded aggregator transaction awaiting the
// payer's signature.
type UnsignedTransaction struct {
	Tx *solana.Transaction
}

func (r *Router) newRequest(ctx context.Context) *resty.Request {
	req := r.http.R().SetContext(ctx)
	if r.apiKey != "" {
		req.SetHeader("x-api-key", r.apiKey)
	}
	return req
}

// Quote asks the aggregator to price inputMint -> outputMint for the given
// base-unit amount.
func (r *Router) Quote(ctx context.Context, inputMint, outputMint string, amountBaseUnits uint64, slippageBps int) (*Quote, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	resp, err := r.newRequest(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   inputMint,
			"outputMint":  outputMint,
			"amount":      strconv.FormatUint(amountBaseUnits, 10),
			"slippageBps": strconv.Itoa(slippageBps),
		}).
		Get("/quote")
	if err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return nil, errors.Wrapf(ErrRouteUnavailable, "quote %d: %s", resp.StatusCode(), body)
		}
		return nil, errors.Wrapf(ErrUpstream, "quote %d: %s", resp.StatusCode(), body)
	}

	raw := resp.Body()
	var parsed struct {
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "quote decode: %v", err)
	}
	inAmt, _ := strconv.ParseUint(parsed.InAmount, 10, 64)
	outAmt, _ := strconv.ParseUint(parsed.OutAmount, 10, 64)

	q := &Quote{
		InputMint:   parsed.InputMint,
		OutputMint:  parsed.OutputMint,
		InAmount:    inAmt,
		OutAmount:   outAmt,
		SlippageBps: slippageBps,
		Raw:         json.RawMessage(append([]byte(nil), raw...)),
	}
	return q, nil
}

// BuildTransaction asks the aggregator to assemble the swap for payer.
//
// The first attempt requests an automatic priority fee. Some venues reject
// that parameter; if the build fails citing it, the build is retried exactly
// once with the parameter omitted before the failure surfaces.
func (r *Router) BuildTransaction(ctx context.Context, q *Quote, payer solana.PublicKey) (*UnsignedTransaction, error) {
	tx, err := r.buildOnce(ctx, q, payer, true)
	if err != nil && isPriorityFeeRejection(err) {
		logger.Warnf("swap build rejected priority fee parameter, retrying without: %v", err)
		tx, err = r.buildOnce(ctx, q, payer, false)
	}
	return tx, err
}

func (r *Router) buildOnce(ctx context.Context, q *Quote, payer solana.PublicKey, withPriorityFee bool) (*UnsignedTransaction, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	body := map[string]any{
		"quoteResponse":           json.RawMessage(q.Raw),
		"userPublicKey":           payer.String(),
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	}
	if withPriorityFee {
		body["prioritizationFeeLamports"] = "auto"
	}

	resp, err := r.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/swap")
	if err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrUpstream, "swap build %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	// decode the body directly; some venues answer without a JSON content type
	var out struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrapf(ErrUpstream, "swap build decode: %v", err)
	}
	if out.SwapTransaction == "" {
		return nil, errors.Wrap(ErrUpstream, "swap build: empty transaction in response")
	}

	rawTx, err := base64.StdEncoding.DecodeString(out.SwapTransaction)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "swap build: transaction not base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "swap build: transaction decode: %v", err)
	}
	return &UnsignedTransaction{Tx: tx}, nil
}

func isPriorityFeeRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "prioritizationfeelamports") ||
		strings.Contains(msg, "priority fee") ||
		strings.Contains(msg, "prioritization fee")
}

// Submit sends the signed transaction and blocks until confirmed-enough.
// Timeouts and on-chain rejection surface as the chain package's sentinels.
func (r *Router) Submit(ctx context.Context, tx *solana.Transaction) (*chain.Confirmation, error) {
	if r.sender == nil {
		return nil, errors.Wrap(ErrUpstream, "no sender configured")
	}
	sig, err := r.sender.SendTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(ErrUpstream, err.Error())
	}
	conf, err := r.sender.WaitForConfirmation(ctx, sig)
	if err != nil {
		// keep chain.ErrConfirmTimeout / ErrTransactionRejected visible
		return nil, fmt.Errorf("swaprouter: submit: %w", err)
	}
	return conf, nil
}
