package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sikabot/internal/gateway"
	"sikabot/internal/model"
	"sikabot/internal/session"
)

var (
	ErrUnknownItem   = errors.New("unknown package or service")
	ErrWrongStep     = errors.New("unexpected reply for the current step")
	ErrInvalidInput  = errors.New("invalid input")
	ErrBadPayMethod  = errors.New("payment method must be wallet or gateway")
	MinDepositAmount = model.Pesewas(100) // GHS 1.00
)

// FlowService drives the conversational state machines. Each method is
// one user reply: it validates the session's current step, advances
// it, and hands off to the gateway or the engine when the flow reaches
// payment.
type FlowService struct {
	sessions session.Store
	users    Users
	wallet   Wallet
	orders   Orders
	gw       Gateway
	engine   *Engine

	callbackURL string
	emailDomain string
}

func NewFlowService(sessions session.Store, users Users, wallet Wallet, orders Orders, gw Gateway, engine *Engine, callbackURL string) *FlowService {
	return &FlowService{
		sessions:    sessions,
		users:       users,
		wallet:      wallet,
		orders:      orders,
		gw:          gw,
		engine:      engine,
		callbackURL: callbackURL,
		emailDomain: "users.sikabot.app",
	}
}

// StartPurchase begins a purchase flow for a catalog item. Any
// existing session is overwritten: one slot per user.
func (s *FlowService) StartPurchase(ctx context.Context, userID, itemCode string) (*model.Session, error) {
	if err := s.users.Ensure(ctx, userID, ""); err != nil {
		return nil, err
	}

	var label string
	var price model.Pesewas
	if bundle := model.FindBundle(itemCode); bundle != nil {
		label, price = bundle.Label, bundle.Price
	} else if svc := model.FindSMM(itemCode); svc != nil {
		// SMM orders are sold at the minimum quantity by default; the
		// destination step captures the target link.
		label = svc.Label
		price = svc.PricePerK * model.Pesewas(svc.MinQty) / 1000
	} else {
		return nil, ErrUnknownItem
	}

	sess := model.Session{
		UserID:    userID,
		Flow:      model.FlowPurchase,
		Step:      model.StepAwaitingPhone,
		ItemCode:  itemCode,
		ItemLabel: label,
		Amount:    price,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SetDestination records the delivery target (phone number for
// bundles, profile/post link for SMM) and moves to payment selection.
func (s *FlowService) SetDestination(ctx context.Context, userID, destination string) (*model.Session, error) {
	if destination == "" {
		return nil, ErrInvalidInput
	}
	sess, err := s.requireStep(ctx, userID, model.FlowPurchase, model.StepAwaitingPhone)
	if err != nil {
		return nil, err
	}
	sess.Destination = destination
	sess.Step = model.StepAwaitingPaymentMethod
	if err := s.sessions.Put(ctx, *sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// PayResult is what the chat layer renders after a payment-method
// choice: either a checkout URL to visit, or the immediate outcome of
// a wallet payment.
type PayResult struct {
	Method           model.PaymentMethod `json:"method"`
	AuthorizationURL string              `json:"authorization_url,omitempty"`
	Reference        string              `json:"reference,omitempty"`
	NewBalance       model.Pesewas       `json:"new_balance,omitempty"`
}

// ChoosePaymentMethod finishes the purchase flow setup. The gateway
// branch initializes a hosted charge and parks the session until a
// confirmation arrives; the wallet branch runs the whole
// reserve-fulfill-compensate path synchronously.
func (s *FlowService) ChoosePaymentMethod(ctx context.Context, userID string, method model.PaymentMethod) (*PayResult, error) {
	sess, err := s.requireStep(ctx, userID, model.FlowPurchase, model.StepAwaitingPaymentMethod)
	if err != nil {
		return nil, err
	}

	switch method {
	case model.PayWallet:
		newBalance, err := s.engine.WalletPurchase(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &PayResult{Method: model.PayWallet, Reference: sess.Reference, NewBalance: newBalance}, nil

	case model.PayGateway:
		return s.initiateCharge(ctx, sess)

	default:
		return nil, ErrBadPayMethod
	}
}

// StartDeposit begins a wallet top-up flow.
func (s *FlowService) StartDeposit(ctx context.Context, userID string) (*model.Session, error) {
	if err := s.users.Ensure(ctx, userID, ""); err != nil {
		return nil, err
	}
	sess := model.Session{
		UserID:    userID,
		Flow:      model.FlowDeposit,
		Step:      model.StepAwaitingAmount,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SetDepositAmount validates the amount and initializes the gateway
// charge for it.
func (s *FlowService) SetDepositAmount(ctx context.Context, userID string, amount model.Pesewas) (*PayResult, error) {
	if amount < MinDepositAmount {
		return nil, fmt.Errorf("%w: minimum deposit is %s", ErrInvalidInput, MinDepositAmount.Cedis())
	}
	sess, err := s.requireStep(ctx, userID, model.FlowDeposit, model.StepAwaitingAmount)
	if err != nil {
		return nil, err
	}
	sess.Amount = amount
	return s.initiateCharge(ctx, sess)
}

// initiateCharge builds the reference, asks the gateway for a checkout
// URL and parks the session at payment_initiated. From here only the
// reconciliation engine can finish the flow.
func (s *FlowService) initiateCharge(ctx context.Context, sess *model.Session) (*PayResult, error) {
	reference := model.NewReference(sess.Flow, sess.UserID, time.Now())

	init, err := s.gw.Initialize(ctx, gateway.InitializeRequest{
		Amount:      sess.Amount,
		Email:       fmt.Sprintf("%s@%s", sess.UserID, s.emailDomain),
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"user_id": sess.UserID,
			"flow":    string(sess.Flow),
		},
	})
	if err != nil {
		return nil, err
	}

	sess.Reference = reference
	sess.Step = model.StepPaymentInitiated
	if err := s.sessions.Put(ctx, *sess); err != nil {
		return nil, err
	}

	return &PayResult{
		Method:           model.PayGateway,
		AuthorizationURL: init.AuthorizationURL,
		Reference:        reference,
	}, nil
}

// Balance returns the user's wallet balance; 0 for new users.
func (s *FlowService) Balance(ctx context.Context, userID string) (model.Pesewas, error) {
	return s.wallet.GetBalance(ctx, userID)
}

// FindOrder looks an order up by id.
func (s *FlowService) FindOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListOrders returns the user's orders, most recent first.
func (s *FlowService) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return s.orders.ListByUser(ctx, userID, limit)
}

// History returns the user's recent ledger entries.
func (s *FlowService) History(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.wallet.Transactions(ctx, userID, limit)
}

func (s *FlowService) requireStep(ctx context.Context, userID string, flow model.Flow, step model.Step) (*model.Session, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if errors.Is(err, session.ErrNoSession) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if sess.Flow != flow || sess.Step != step {
		return nil, fmt.Errorf("%w: flow %s step %s", ErrWrongStep, sess.Flow, sess.Step)
	}
	return sess, nil
}
