package model

import "time"

type ReceiptKind string

const (
	ReceiptDeposit          ReceiptKind = "deposit"
	ReceiptOrderDelivered   ReceiptKind = "order_delivered"
	ReceiptDeliveryFailed   ReceiptKind = "delivery_failed"
	ReceiptRefund           ReceiptKind = "refund"
	ReceiptCreditFailed     ReceiptKind = "credit_failed"
	ReceiptAlreadyProcessed ReceiptKind = "already_processed"
)

// ReceiptEvent is published on the bus after every terminal
// reconciliation outcome so the chat side can tell the user what
// happened without the engine knowing about message transports.
type ReceiptEvent struct {
	Kind       ReceiptKind `json:"kind"`
	UserID     string      `json:"user_id"`
	Reference  string      `json:"reference"`
	Amount     Pesewas     `json:"amount"`
	NewBalance Pesewas     `json:"new_balance,omitempty"`
	ItemLabel  string      `json:"item_label,omitempty"`
	OrderID    string      `json:"order_id,omitempty"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
