package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// rpcClient adapts the solana-go RPC client to the narrow Client surface,
// flattening legacy and versioned transaction encodings into TransactionInfo.
type rpcClient struct {
	cl *rpc.Client
}

func newRPCClient(endpoint string) Client {
	return &rpcClient{cl: rpc.New(endpoint)}
}

func (c *rpcClient) GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error) {
	maxVersion := uint64(0)
	out, err := c.cl.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if out == nil || out.Transaction == nil {
		return nil, ErrNotFound
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	info := &TransactionInfo{Slot: out.Slot}
	info.AccountKeys = append(info.AccountKeys, tx.Message.AccountKeys...)
	if out.Meta != nil {
		info.Failed = out.Meta.Err != nil
		info.AccountKeys = append(info.AccountKeys, out.Meta.LoadedAddresses.Writable...)
		info.AccountKeys = append(info.AccountKeys, out.Meta.LoadedAddresses.ReadOnly...)
	}
	for _, ix := range tx.Message.Instructions {
		// Programs are always static message keys; lookup tables cannot
		// supply them.
		if int(ix.ProgramIDIndex) < len(tx.Message.AccountKeys) {
			info.ProgramIDs = append(info.ProgramIDs, tx.Message.AccountKeys[ix.ProgramIDIndex])
		}
	}
	return info, nil
}

func (c *rpcClient) GetAccountInfo(ctx context.Context, key solana.PublicKey) (*AccountInfo, error) {
	out, err := c.cl.GetAccountInfo(ctx, key)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrNotFound
	}

	info := &AccountInfo{Owner: out.Value.Owner}
	if out.Value.Data != nil {
		info.Data = out.Value.Data.GetBinary()
	}
	return info, nil
}
