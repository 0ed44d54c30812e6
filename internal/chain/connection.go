// Package chain verifies that submitted transaction signatures reflect the
// claimed on-chain action before any registry state is mutated. Negative
// verdicts are values, not errors; only transport exhaustion surfaces as an
// error, because then no verdict could be reached at all.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/sync/singleflight"

	"landchain/internal/chain/metrics"
	strutil "landchain/pkg/platform/strings"
)

// ErrNotFound reports that the chain has no record of the requested
// transaction or account. It is a verdict input, not a transport failure.
var ErrNotFound = errors.New("not found on chain")

// TransactionInfo is the slice of a confirmed transaction the verifier needs:
// the slot, whether it failed on chain, and the account/program identifiers it
// references, independent of legacy vs versioned encoding.
type TransactionInfo struct {
	Slot   uint64
	Failed bool
	// AccountKeys is the union of static message keys and addresses loaded
	// from lookup tables, writable and readonly alike.
	AccountKeys []solana.PublicKey
	// ProgramIDs are the programs invoked by the transaction's instructions.
	ProgramIDs []solana.PublicKey
}

// AddressSet returns the referenced account addresses in base58.
func (t *TransactionInfo) AddressSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.AccountKeys))
	for _, k := range t.AccountKeys {
		set[k.String()] = struct{}{}
	}
	return set
}

// ProgramSet returns the invoked program identifiers in base58.
func (t *TransactionInfo) ProgramSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.ProgramIDs))
	for _, p := range t.ProgramIDs {
		set[p.String()] = struct{}{}
	}
	return set
}

// AccountInfo is a raw on-chain account: its owning program and data bytes.
type AccountInfo struct {
	Owner solana.PublicKey
	Data  []byte
}

// Client is the subset of the Solana RPC surface the verifier consumes.
// Implementations return ErrNotFound when the chain has no record, and any
// other error for transport-level failures.
type Client interface {
	GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error)
	GetAccountInfo(ctx context.Context, key solana.PublicKey) (*AccountInfo, error)
}

// ClientFactory builds a Client for one endpoint URL. Overridable in tests.
type ClientFactory func(endpoint string) Client

// RPCUnavailableError reports that every configured endpoint failed
// transiently, naming the endpoints tried. Distinct from a negative verdict:
// the verifier could not reach the chain at all.
type RPCUnavailableError struct {
	Endpoints []string
	Last      error
}

func (e *RPCUnavailableError) Error() string {
	return fmt.Sprintf("all RPC endpoints unavailable (%s): %v",
		strings.Join(e.Endpoints, ", "), e.Last)
}

func (e *RPCUnavailableError) Unwrap() error { return e.Last }

// ConnectionManager owns the ordered RPC endpoint list and the failover
// cursor. The cursor is an optimization so healthy traffic sticks to a working
// endpoint; every call still retries across all endpoints independently, so no
// call depends on a prior rotation.
type ConnectionManager struct {
	endpoints []string
	clients   []Client
	cursor    atomic.Uint32

	group   singleflight.Group
	metrics *metrics.Metrics
}

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	factory ClientFactory
	metrics *metrics.Metrics
}

// WithClientFactory overrides how per-endpoint clients are built.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(c *managerConfig) { c.factory = f }
}

// WithManagerMetrics attaches RPC metrics.
func WithManagerMetrics(m *metrics.Metrics) ManagerOption {
	return func(c *managerConfig) { c.metrics = m }
}

// NewConnectionManager builds a manager over the deduplicated endpoint list.
func NewConnectionManager(endpoints []string, opts ...ManagerOption) (*ConnectionManager, error) {
	cfg := &managerConfig{factory: newRPCClient}
	for _, opt := range opts {
		opt(cfg)
	}

	endpoints = strutil.DedupeAndTrim(endpoints)
	if len(endpoints) == 0 {
		return nil, errors.New("at least one RPC endpoint is required")
	}

	clients := make([]Client, len(endpoints))
	for i, ep := range endpoints {
		clients[i] = cfg.factory(ep)
	}

	return &ConnectionManager{
		endpoints: endpoints,
		clients:   clients,
		metrics:   cfg.metrics,
	}, nil
}

// Endpoints returns the configured endpoint URLs in order.
func (m *ConnectionManager) Endpoints() []string {
	return append([]string(nil), m.endpoints...)
}

// GetTransaction resolves a transaction across endpoints with failover.
// Concurrent lookups for the same signature share one RPC call.
func (m *ConnectionManager) GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error) {
	v, err, _ := m.group.Do("tx:"+signature.String(), func() (any, error) {
		var info *TransactionInfo
		err := m.do(ctx, func(c Client) error {
			var err error
			info, err = c.GetTransaction(ctx, signature)
			return err
		})
		return info, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*TransactionInfo), nil
}

// GetAccountInfo resolves a raw account across endpoints with failover.
func (m *ConnectionManager) GetAccountInfo(ctx context.Context, key solana.PublicKey) (*AccountInfo, error) {
	v, err, _ := m.group.Do("acct:"+key.String(), func() (any, error) {
		var info *AccountInfo
		err := m.do(ctx, func(c Client) error {
			var err error
			info, err = c.GetAccountInfo(ctx, key)
			return err
		})
		return info, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*AccountInfo), nil
}

// do runs fn against the current endpoint, rotating on transient failure,
// bounded by the endpoint count.
func (m *ConnectionManager) do(ctx context.Context, fn func(Client) error) error {
	n := len(m.clients)
	start := int(m.cursor.Load()) % n

	var lastErr error
	for i := range n {
		idx := (start + i) % n
		err := fn(m.clients[idx])
		if err == nil {
			m.metrics.IncrementRPCRequest(m.endpoints[idx], "ok")
			return nil
		}
		if !isTransient(err) {
			m.metrics.IncrementRPCRequest(m.endpoints[idx], "error")
			return err
		}
		m.metrics.IncrementRPCRequest(m.endpoints[idx], "transient")
		m.metrics.IncrementFailover(m.endpoints[idx])
		m.cursor.Store(uint32((idx + 1) % n))
		lastErr = err
	}
	return &RPCUnavailableError{Endpoints: m.Endpoints(), Last: lastErr}
}

// isTransient classifies failures worth a failover. A not-found is a verdict
// input; a structured RPC error means the server answered and retrying
// elsewhere will not change the answer, except for throttling responses.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		// -32005: node is behind; 429: rate limited
		return rpcErr.Code == -32005 || rpcErr.Code == 429
	}
	// Network, DNS, timeout and malformed-response failures all qualify.
	return true
}
