// Package ledger talks to the remote append-only ledger that records published
// items, and knows the binary layout of its account data.
package ledger

import (
	"context"
	"fmt"
)

// Creator is a royalty recipient of the program.
type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// ProgramConfig is what a program instance is initialised with.
type ProgramConfig struct {
	Symbol               string    `json:"symbol"`
	SellerFeeBasisPoints int       `json:"sellerFeeBasisPoints"`
	Creators             []Creator `json:"creators"`
	IsMutable            bool      `json:"isMutable"`
	RetainAuthority      bool      `json:"retainAuthority"`
	MaxItems             int       `json:"maxItems"`
}

// ProgramIdentity identifies an initialised program instance.
type ProgramIdentity struct {
	Identity  string `json:"identity"`
	UUID      string `json:"uuid"`
	TxID      string `json:"txId"`
	Authority string `json:"authority"`
}

// Line is one record written into the program's item list.
type Line struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// AccountInfo is the decoded header of a program account.
type AccountInfo struct {
	MaxItemCount int    `json:"maxItemCount"`
	ItemCount    int    `json:"itemCount"`
	Authority    string `json:"authority"`
	UUID         string `json:"uuid"`
	Symbol       string `json:"symbol"`
}

// PublisherParams configures the sale instance bound to a program.
type PublisherParams struct {
	Program        string `json:"program"`
	UUID           string `json:"uuid"`
	Price          uint64 `json:"price"`
	ItemsAvailable int    `json:"itemsAvailable"`
	Treasury       string `json:"treasury,omitempty"`
	TokenMint      string `json:"tokenMint,omitempty"`
	TokenAccount   string `json:"tokenAccount,omitempty"`
	StartDate      int64  `json:"startDate,omitempty"`
}

// UpdateParams changes a publisher. Nil fields are left as they are.
type UpdateParams struct {
	Price     *uint64 `json:"price,omitempty"`
	StartDate *int64  `json:"startDate,omitempty"`
}

// Client is the narrow contract the pipeline needs from the ledger. Every call
// may fail transiently; callers own any retry.
type Client interface {
	InitializeProgram(ctx context.Context, cfg ProgramConfig) (ProgramIdentity, error)
	AppendRecords(ctx context.Context, identity string, start int, records []Line) error
	ReadRawAccount(ctx context.Context, identity string) ([]byte, error)
	ReadDecodedAccount(ctx context.Context, identity string) (*AccountInfo, error)
	CreatePublisher(ctx context.Context, params PublisherParams) (string, error)
	UpdatePublisher(ctx context.Context, address string, params UpdateParams) error
}

// NotFoundError is returned for an unknown program or publisher.
type NotFoundError struct {
	Kind    string
	Address string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Address)
}
