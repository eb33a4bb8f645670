package model

import "time"

type User struct {
	ID          string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   Pesewas   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TxType string

const (
	TxDeposit      TxType = "deposit"
	TxOrderPayment TxType = "order_payment"
	TxAddFunds     TxType = "add_funds"
	TxRefund       TxType = "refund"
)

type TxStatus string

const (
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
)

// Transaction is an append-only ledger entry. The unique reference is
// what makes replayed confirmations detectable before any balance write.
type Transaction struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"user_id"`
	Reference       string    `json:"reference"`
	Type            TxType    `json:"type"`
	Status          TxStatus  `json:"status"`
	Amount          Pesewas   `json:"amount"`
	PreviousBalance Pesewas   `json:"previous_balance"`
	NewBalance      Pesewas   `json:"new_balance"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}
