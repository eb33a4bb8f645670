package model

import "time"

type PaymentMethod string

const (
	PayWallet  PaymentMethod = "wallet"
	PayGateway PaymentMethod = "gateway"
)

type OrderStatus string

const (
	OrderSuccess OrderStatus = "success"
	OrderFailed  OrderStatus = "failed"
)

// Order records a fulfilled purchase. Rows are written only for
// definitive outcomes and never updated afterwards; failed deliveries
// leave a failed Transaction instead.
type Order struct {
	ID            string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	ItemCode      string        `json:"item_code"`
	ItemLabel     string        `json:"item_label"`
	Destination   string        `json:"destination"`
	Amount        Pesewas       `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        OrderStatus   `json:"status"`
	ProviderRef   string        `json:"provider_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
