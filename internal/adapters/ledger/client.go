// Package ledger mirrors report milestones to an Aptos contract. The chain is
// an audit trail only; every failure here degrades to a synthetic local ref.
package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/sha3"
)

const (
	defaultMaxGas        = 2000
	defaultGasUnitPrice  = 100
	defaultExpiration    = 10 * time.Minute
	defaultHTTPTimeout   = 8 * time.Second
	confirmInitialDelay  = 200 * time.Millisecond
	confirmMaxDelay      = time.Second
	ed25519SchemeSuffix  = 0x00
	entryFunctionPayload = "entry_function_payload"
)

// Sentinel kinds for ledger errors.
var (
	ErrNoCredentials = errors.New("ledger signing key not configured")
	ErrInvalidKey    = errors.New("invalid ledger signing key")
	ErrTxFailed      = errors.New("ledger transaction failed")
	ErrTxPending     = errors.New("ledger transaction pending")
)

// Payload is an entry function call.
type Payload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

// RawTransaction is an unsigned transaction in the node's JSON form.
type RawTransaction struct {
	Sender                  string  `json:"sender"`
	SequenceNumber          string  `json:"sequence_number"`
	MaxGasAmount            string  `json:"max_gas_amount"`
	GasUnitPrice            string  `json:"gas_unit_price"`
	ExpirationTimestampSecs string  `json:"expiration_timestamp_secs"`
	Payload                 Payload `json:"payload"`
}

// Signature is the ed25519 authenticator.
type Signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SignedTransaction is ready for submission.
type SignedTransaction struct {
	RawTransaction
	Signature Signature `json:"signature"`
}

type accountInfo struct {
	SequenceNumber string `json:"sequence_number"`
}

type submitted struct {
	Hash string `json:"hash"`
}

type txStatus struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status"`
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

// Client talks to an Aptos full node over its REST API.
type Client struct {
	nodeURL  string
	contract string
	key      ed25519.PrivateKey
	address  string
	http     *http.Client
	now      func() time.Time
}

// ClientOption applies a configuration option to the Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithClock overrides time for expiration stamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a client for nodeURL signing with privateKeyHex, a 32-byte
// ed25519 seed in hex ("0x" and "ed25519-priv-" prefixes accepted). An empty
// key returns ErrNoCredentials.
func NewClient(nodeURL, privateKeyHex, contract string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, ErrNoCredentials
	}
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	c := &Client{
		nodeURL:  strings.TrimRight(nodeURL, "/"),
		contract: contract,
		key:      key,
		address:  AccountAddress(key.Public().(ed25519.PublicKey)),
		http:     &http.Client{Timeout: defaultHTTPTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "ed25519-priv-")
	s = strings.TrimPrefix(s, "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// AccountAddress derives the single-key account address:
// sha3-256(public key || scheme byte).
func AccountAddress(pub ed25519.PublicKey) string {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519SchemeSuffix})
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Address returns the signer's account address.
func (c *Client) Address() string { return c.address }

// EntryFunction returns the fully qualified contract function name.
func (c *Client) EntryFunction(name string) string {
	return c.contract + "::CivicReporting::" + name
}

// GenerateTransaction fetches the sender's sequence number and builds a raw
// transaction for payload.
func (c *Client) GenerateTransaction(ctx context.Context, payload Payload) (*RawTransaction, error) {
	var acct accountInfo
	if err := c.do(ctx, http.MethodGet, "/accounts/"+c.address, nil, &acct); err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	if payload.TypeArguments == nil {
		payload.TypeArguments = []string{}
	}
	return &RawTransaction{
		Sender:                  c.address,
		SequenceNumber:          acct.SequenceNumber,
		MaxGasAmount:            strconv.Itoa(defaultMaxGas),
		GasUnitPrice:            strconv.Itoa(defaultGasUnitPrice),
		ExpirationTimestampSecs: strconv.FormatInt(c.now().Add(defaultExpiration).Unix(), 10),
		Payload:                 payload,
	}, nil
}

// SignTransaction asks the node for the signing message and signs it.
func (c *Client) SignTransaction(ctx context.Context, raw *RawTransaction) (*SignedTransaction, error) {
	var msgHex string
	if err := c.do(ctx, http.MethodPost, "/transactions/encode_submission", raw, &msgHex); err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	msg, err := hex.DecodeString(strings.TrimPrefix(msgHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signing message: %w", err)
	}
	sig := ed25519.Sign(c.key, msg)
	return &SignedTransaction{
		RawTransaction: *raw,
		Signature: Signature{
			Type:      "ed25519_signature",
			PublicKey: "0x" + hex.EncodeToString(c.key.Public().(ed25519.PublicKey)),
			Signature: "0x" + hex.EncodeToString(sig),
		},
	}, nil
}

// SubmitTransaction posts a signed transaction and returns its hash.
func (c *Client) SubmitTransaction(ctx context.Context, signed *SignedTransaction) (string, error) {
	var out submitted
	if err := c.do(ctx, http.MethodPost, "/transactions", signed, &out); err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	return out.Hash, nil
}

// WaitForTransaction polls until hash is committed, fails, or ctx ends.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(confirmInitialDelay),
		backoff.WithMaxInterval(confirmMaxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.Retry(func() error {
		var st txStatus
		err := c.do(ctx, http.MethodGet, "/transactions/by_hash/"+hash, nil, &st)
		var he *httpError
		switch {
		case errors.As(err, &he) && he.status == http.StatusNotFound:
			return ErrTxPending
		case err != nil:
			return backoff.Permanent(err)
		case st.Type == "pending_transaction":
			return ErrTxPending
		case !st.Success:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTxFailed, st.VMStatus))
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// Call runs one entry function through generate, sign, submit and wait, and
// returns the committed hash.
func (c *Client) Call(ctx context.Context, function string, args ...string) (string, error) {
	raw, err := c.GenerateTransaction(ctx, Payload{
		Type:      entryFunctionPayload,
		Function:  c.EntryFunction(function),
		Arguments: args,
	})
	if err != nil {
		return "", err
	}
	signed, err := c.SignTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	hash, err := c.SubmitTransaction(ctx, signed)
	if err != nil {
		return "", err
	}
	if err := c.WaitForTransaction(ctx, hash); err != nil {
		return hash, fmt.Errorf("wait for %s: %w", hash, err)
	}
	return hash, nil
}

type httpError struct {
	status int
	body   apiError
}

func (e *httpError) Error() string {
	return fmt.Sprintf("node returned %d: %s %s", e.status, e.body.ErrorCode, e.body.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.nodeURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		he := &httpError{status: resp.StatusCode}
		_ = sonic.Unmarshal(data, &he.body)
		return he
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
