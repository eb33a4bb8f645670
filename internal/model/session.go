package model

import "time"

type Flow string

const (
	FlowDeposit   Flow = "deposit"
	FlowPurchase  Flow = "purchase"
	FlowFindOrder Flow = "find_order"
)

type Step string

const (
	StepSelectingPackage      Step = "selecting_package"
	StepAwaitingPhone         Step = "awaiting_phone"
	StepAwaitingPaymentMethod Step = "awaiting_payment_method"
	StepAwaitingAmount        Step = "awaiting_amount"
	StepPaymentInitiated      Step = "payment_initiated"
)

// Session is the single in-flight flow a user can have. It is tagged by
// Flow; only the fields that flow needs are populated:
//
//	deposit:  Amount, then Reference once payment is initiated
//	purchase: ItemCode/ItemLabel/Amount, Destination after the phone step,
//	          Reference once a gateway charge exists
//
// Creating a session for a user who already has one overwrites it;
// one slot per user, last write wins.
type Session struct {
	UserID      string    `json:"user_id"`
	Flow        Flow      `json:"flow"`
	Step        Step      `json:"step"`
	Reference   string    `json:"reference,omitempty"`
	Amount      Pesewas   `json:"amount,omitempty"`
	ItemCode    string    `json:"item_code,omitempty"`
	ItemLabel   string    `json:"item_label,omitempty"`
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
