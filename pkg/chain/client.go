// Package chain wraps the Solana RPC SDK behind the small surface the
// transfer services need: authoritative balances, unsigned transfer
// construction, submission, bounded confirmation and signature lookup.
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrConfirmTimeout is returned when a submitted transaction did not reach
// the requested commitment within the confirmation window. The transaction
// may still land later; callers record the outcome as failed and leave final
// resolution to reconciliation.
var ErrConfirmTimeout = errors.New("confirmation timed out")

// ErrTxNotFound is returned by LookupTransaction when the network has no
// record of the signature.
var ErrTxNotFound = errors.New("transaction not found on network")

// UnsignedTransfer is a phase-1 quote artifact: a serialized, not yet signed
// transfer the client can sign with its own key.
type UnsignedTransfer struct {
	Base64    string
	Blockhash string
	Memo      string
}

// TxOutcome is the network's view of a signature.
type TxOutcome struct {
	Found  bool
	Failed bool
	Slot   uint64
	ErrTxt string
}

type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType

	poolKey     *solana.PrivateKey
	poolAddress solana.PublicKey

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// NewClient builds a settlement-network client. poolPrivateKey may be empty,
// in which case custodial payouts are unavailable but every read path works.
func NewClient(rpcURL, commitment, poolAddress, poolPrivateKey string, confirmTimeout, pollInterval time.Duration) (*Client, error) {
	c := &Client{
		rpc:            rpc.New(rpcURL),
		commitment:     parseCommitment(commitment),
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
	}
	if poolPrivateKey != "" {
		pk, err := solana.PrivateKeyFromBase58(poolPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("house pool key: %w", err)
		}
		c.poolKey = &pk
		c.poolAddress = pk.PublicKey()
	} else if poolAddress != "" {
		pub, err := solana.PublicKeyFromBase58(poolAddress)
		if err != nil {
			return nil, fmt.Errorf("house pool address: %w", err)
		}
		c.poolAddress = pub
	}
	return c, nil
}

func parseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// ValidAddress reports whether s parses as a base58 ed25519 public key.
func ValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// PoolAddress returns the house pool address in base58, or "" when no pool
// is configured.
func (c *Client) PoolAddress() string {
	if c.poolAddress.IsZero() {
		return ""
	}
	return c.poolAddress.String()
}

// GetBalance returns the authoritative lamport balance of an address.
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	out, err := c.rpc.GetBalance(ctx, pub, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return int64(out.Value), nil
}

// BuildTransfer constructs an unsigned system transfer from source to
// destination, stamped with a memo instruction and a freshly fetched
// blockhash. The source pays the fee. Nothing is submitted.
func (c *Client) BuildTransfer(ctx context.Context, source, destination string, lamports int64, memoText string) (*UnsignedTransfer, error) {
	from, err := solana.PublicKeyFromBase58(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", source, err)
	}
	to, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", destination, err)
	}
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("getLatestBlockhash: %w", err)
	}

	instrs := []solana.Instruction{
		system.NewTransferInstruction(uint64(lamports), from, to).Build(),
		memoInstruction(memoText, from),
	}
	tx, err := solana.NewTransaction(instrs, recent.Value.Blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return &UnsignedTransfer{
		Base64:    base64.StdEncoding.EncodeToString(raw),
		Blockhash: recent.Value.Blockhash.String(),
		Memo:      memoText,
	}, nil
}

func memoInstruction(text string, signer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(text),
	)
}

// SubmitSigned decodes a base64 client-signed transaction and sends it.
// Returns the base58 signature.
func (c *Client) SubmitSigned(ctx context.Context, signedBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(signedBase64)
	if err != nil {
		return "", fmt.Errorf("decode signed transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("parse signed transaction: %w", err)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	return sig.String(), nil
}

// SubmitPoolTransfer builds, signs with the house pool key and submits a
// transfer out of the pool. Only the custodial payout path uses this.
func (c *Client) SubmitPoolTransfer(ctx context.Context, destination string, lamports int64, memoText string) (string, error) {
	if c.poolKey == nil {
		return "", errors.New("house pool key not configured")
	}
	to, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", destination, err)
	}
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return "", fmt.Errorf("getLatestBlockhash: %w", err)
	}
	instrs := []solana.Instruction{
		system.NewTransferInstruction(uint64(lamports), c.poolAddress, to).Build(),
		memoInstruction(memoText, c.poolAddress),
	}
	tx, err := solana.NewTransaction(instrs, recent.Value.Blockhash, solana.TransactionPayer(c.poolAddress))
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.poolAddress) {
			return c.poolKey
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	return sig.String(), nil
}

// AwaitConfirmation polls signature status until the configured commitment is
// reached or the confirmation window elapses. A timeout does not mean the
// transaction failed on-chain, only that its outcome is unknown here.
func (c *Client) AwaitConfirmation(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction failed on network: %v", st.Err)
			}
			if confirmedAt(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		} else if err != nil {
			log.Printf("[Chain] signature status poll error: %v", err)
		}
		if time.Now().After(deadline) {
			return ErrConfirmTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func confirmedAt(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	return rank(string(status)) >= rank(string(want))
}

// LookupTransaction asks the network for a signature's final outcome.
// Returns ErrTxNotFound when the network has no record of it.
func (c *Client) LookupTransaction(ctx context.Context, signature string) (*TxOutcome, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if out == nil {
		return nil, ErrTxNotFound
	}
	outcome := &TxOutcome{Found: true, Slot: out.Slot}
	if out.Meta != nil && out.Meta.Err != nil {
		outcome.Failed = true
		outcome.ErrTxt = fmt.Sprintf("%v", out.Meta.Err)
	}
	return outcome, nil
}
