package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"narrativeradar/internal/fetch"
)

// DefaultRPCURL is the public mainnet endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// maxSignaturesPerCall is the RPC's limit for getSignaturesForAddress.
const maxSignaturesPerCall = 1000

// RPCError is a JSON-RPC level error returned with HTTP 200.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solana rpc error %d: %s", e.Code, e.Message)
}

// RPC is a minimal JSON-RPC client for the two methods the adapter needs.
type RPC struct {
	url  string
	http *fetch.Client
	seq  atomic.Int64
}

// NewRPC builds a client for url using f for transport.
func NewRPC(url string, f *fetch.Client) *RPC {
	if url == "" {
		url = DefaultRPCURL
	}
	if f == nil {
		f = fetch.New()
	}
	return &RPC{url: url, http: f}
}

// URL returns the endpoint.
func (c *RPC) URL() string { return c.url }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (r *rpcResponse) Validate() error {
	if r.Error == nil && r.Result == nil {
		return errors.New("json-rpc response has neither result nor error")
	}
	return nil
}

func (c *RPC) call(ctx context.Context, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params}
	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.url, nil, req, &resp); err != nil {
		return fmt.Errorf("solana: %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("solana: %s: %w", method, resp.Error)
	}
	if err := fetch.Decode(resp.Result, out); err != nil {
		return fmt.Errorf("solana: %s: %w", method, err)
	}
	return nil
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction errored on chain.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type signaturePage []SignatureInfo

func (p *signaturePage) Validate() error {
	for i, s := range *p {
		if s.Signature == "" {
			return fmt.Errorf("signature entry %d is empty", i)
		}
	}
	return nil
}

// Signatures returns up to limit signatures for address, newest first, older than before when set.
func (c *RPC) Signatures(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	if limit <= 0 || limit > maxSignaturesPerCall {
		limit = maxSignaturesPerCall
	}
	opts := map[string]any{"limit": limit, "commitment": "confirmed"}
	if before != "" {
		opts["before"] = before
	}
	var page signaturePage
	if err := c.call(ctx, "getSignaturesForAddress", []any{address, opts}, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// AccountKey is a parsed account reference in a transaction message.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Transaction is the subset of a jsonParsed getTransaction result the adapter reads.
type Transaction struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err json.RawMessage `json:"err"`
		Fee uint64          `json:"fee"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []AccountKey `json:"accountKeys"`
		} `json:"message"`
		Signatures []string `json:"signatures"`
	} `json:"transaction"`
}

func (t *Transaction) Validate() error {
	if len(t.Transaction.Message.AccountKeys) == 0 {
		return errors.New("transaction has no account keys")
	}
	return nil
}

// FeePayer is the first account key.
func (t *Transaction) FeePayer() string {
	return t.Transaction.Message.AccountKeys[0].Pubkey
}

// Failed reports whether meta carries an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null"
}

// ErrTransactionNotFound is returned when the node has no record of a signature.
var ErrTransactionNotFound = errors.New("solana: transaction not found")

// Transaction fetches and parses one transaction.
func (c *RPC) Transaction(ctx context.Context, signature string) (*Transaction, error) {
	var raw json.RawMessage
	opts := map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
		"commitment":                     "confirmed",
	}
	if err := c.call(ctx, "getTransaction", []any{signature, opts}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrTransactionNotFound
	}
	var tx Transaction
	if err := fetch.Decode(raw, &tx); err != nil {
		return nil, fmt.Errorf("solana: getTransaction: %w", err)
	}
	return &tx, nil
}
