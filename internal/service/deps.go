package service

import (
	"context"

	"sikabot/internal/fulfillment"
	"sikabot/internal/gateway"
	"sikabot/internal/model"
)

// Collaborator interfaces. Transports and the engine depend on these,
// not on the concrete repositories or HTTP clients, so the core can be
// exercised with in-memory fakes.

type Wallet interface {
	GetBalance(ctx context.Context, userID string) (model.Pesewas, error)
	Credit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error)
	Debit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error)
	Record(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, status model.TxStatus, reference, description string) error
	ReferenceSeen(ctx context.Context, reference string) (bool, error)
	Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

type Orders interface {
	Create(ctx context.Context, o model.Order) error
	Get(ctx context.Context, orderID string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error)
}

type Users interface {
	Ensure(ctx context.Context, userID, displayName string) error
}

type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*gateway.VerifyData, error)
	ValidateSignature(rawBody []byte, headerSignature string) bool
}

type Fulfiller interface {
	OrderBundle(ctx context.Context, order fulfillment.BundleOrder) (*fulfillment.Result, error)
	OrderSMM(ctx context.Context, order fulfillment.SMMOrder) (*fulfillment.Result, error)
}

// RefLocker serializes reconciliation per reference, so a webhook and
// a manual verify racing on the same charge cannot both dispatch.
type RefLocker interface {
	Acquire(ctx context.Context, reference string) (bool, error)
	Release(ctx context.Context, reference string) error
}

// Bus carries receipt events to whatever renders chat replies.
type Bus interface {
	Publish(topic string, data []byte) error
}
