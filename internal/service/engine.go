package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sikabot/internal/fulfillment"
	"sikabot/internal/gateway"
	"sikabot/internal/model"
	"sikabot/internal/repository"
	"sikabot/internal/session"
)

var (
	ErrSignatureInvalid  = errors.New("webhook signature mismatch")
	ErrSessionExpired    = errors.New("no pending payment session, start again")
	ErrReferenceMismatch = errors.New("reference does not match the pending session")
)

// ErrAlreadyProcessed is the repository's dedup sentinel, re-exported
// because transports treat it as a terminal no-op, not a failure.
var ErrAlreadyProcessed = repository.ErrAlreadyProcessed

// TopicReceipts is where every terminal reconciliation outcome is
// published.
const TopicReceipts = "receipts.reconciled"

// Engine matches asynchronous payment confirmations to pending
// sessions and applies exactly one state change per reference. Both
// entry points, the signed webhook and the user-triggered verify,
// funnel into the same dispatch, so the two paths cannot diverge.
type Engine struct {
	sessions  session.Store
	wallet    Wallet
	orders    Orders
	gw        Gateway
	fulfiller Fulfiller
	locks     RefLocker
	bus       Bus
}

func NewEngine(sessions session.Store, wallet Wallet, orders Orders, gw Gateway, fulfiller Fulfiller, locks RefLocker, bus Bus) *Engine {
	return &Engine{
		sessions:  sessions,
		wallet:    wallet,
		orders:    orders,
		gw:        gw,
		fulfiller: fulfiller,
		locks:     locks,
		bus:       bus,
	}
}

// HandleWebhook processes a raw gateway event. Callers must ack the
// event at the transport level no matter what is returned here;
// returned errors exist for logging and tests, never for NACKing the
// gateway.
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !e.gw.ValidateSignature(rawBody, signature) {
		slog.Warn("webhook dropped: bad signature")
		return ErrSignatureInvalid
	}

	ev, err := gateway.ParseWebhook(rawBody)
	if err != nil {
		slog.Warn("webhook dropped: unparseable body", "error", err)
		return err
	}
	if ev.Event != gateway.EventChargeSuccess {
		return nil
	}

	reference := ev.Data.Reference
	_, userID, err := model.ParseReference(reference)
	if err != nil {
		slog.Warn("webhook dropped: bad reference", "reference", reference)
		return err
	}

	sess, err := e.sessions.Get(ctx, userID)
	if errors.Is(err, session.ErrNoSession) {
		slog.Info("webhook ignored: no pending session", "user_id", userID, "reference", reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Reference != reference {
		slog.Info("webhook ignored: stale reference",
			"user_id", userID, "got", reference, "want", sess.Reference)
		return nil
	}

	return e.consume(ctx, sess, ev.Data.Amount)
}

// VerifyPayment is the manual "I PAID" path. Unlike the webhook path,
// session problems are user-visible errors here: the user asked and
// deserves an answer, and a mismatched reference must leave the
// session intact.
func (e *Engine) VerifyPayment(ctx context.Context, userID, reference string) error {
	seen, err := e.wallet.ReferenceSeen(ctx, reference)
	if err != nil {
		return fmt.Errorf("check reference: %w", err)
	}
	if seen {
		return ErrAlreadyProcessed
	}

	data, err := e.gw.Verify(ctx, reference)
	if err != nil {
		return err
	}

	sess, err := e.sessions.Get(ctx, userID)
	if errors.Is(err, session.ErrNoSession) {
		return ErrSessionExpired
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Reference != reference {
		return ErrReferenceMismatch
	}

	return e.consume(ctx, sess, data.Amount)
}

// consume is the shared one-shot dispatch: take the per-reference
// lock, run the flow's sub-flow, then delete the session regardless of
// the sub-flow outcome.
func (e *Engine) consume(ctx context.Context, sess *model.Session, paidAmount model.Pesewas) error {
	acquired, err := e.locks.Acquire(ctx, sess.Reference)
	if err != nil {
		return fmt.Errorf("acquire reconcile lock: %w", err)
	}
	if !acquired {
		slog.Info("reconcile skipped: reference is being processed elsewhere",
			"reference", sess.Reference)
		return ErrAlreadyProcessed
	}
	defer func() { _ = e.locks.Release(ctx, sess.Reference) }()

	var dispatchErr error
	switch sess.Flow {
	case model.FlowDeposit:
		dispatchErr = e.completeDeposit(ctx, sess, paidAmount)
	case model.FlowPurchase:
		dispatchErr = e.completeGatewayPurchase(ctx, sess)
	default:
		dispatchErr = fmt.Errorf("session flow %q cannot consume a payment", sess.Flow)
	}

	// One-shot consumption: the session dies here whether the sub-flow
	// succeeded or not. Failures were already recorded and surfaced.
	if err := e.sessions.Delete(ctx, sess.UserID); err != nil {
		slog.Error("failed to delete consumed session", "user_id", sess.UserID, "error", err)
	}
	return dispatchErr
}

// completeDeposit credits the wallet with the confirmed amount. If the
// credit fails the money is already with the gateway, so there is
// nothing to roll back; the user is pointed at support.
func (e *Engine) completeDeposit(ctx context.Context, sess *model.Session, paidAmount model.Pesewas) error {
	amount := paidAmount
	if amount <= 0 {
		amount = sess.Amount
	}

	newBalance, err := e.wallet.Credit(ctx, sess.UserID, amount, model.TxDeposit, sess.Reference, "wallet deposit")
	if errors.Is(err, ErrAlreadyProcessed) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		e.publish(model.ReceiptEvent{
			Kind:      model.ReceiptCreditFailed,
			UserID:    sess.UserID,
			Reference: sess.Reference,
			Amount:    amount,
			Message:   "We received your payment but could not credit your wallet. Please contact support.",
		})
		return fmt.Errorf("credit deposit: %w", err)
	}

	e.publish(model.ReceiptEvent{
		Kind:       model.ReceiptDeposit,
		UserID:     sess.UserID,
		Reference:  sess.Reference,
		Amount:     amount,
		NewBalance: newBalance,
	})
	return nil
}

// completeGatewayPurchase delivers the purchased item after the
// gateway confirmed payment. Fulfillment failure here is the
// paid-but-not-delivered case: a failed ledger entry is always
// written, the user is always told, and no automatic refund happens
// because the money went to the gateway, not the wallet.
func (e *Engine) completeGatewayPurchase(ctx context.Context, sess *model.Session) error {
	res, err := e.deliver(ctx, sess)
	if err != nil || !res.Delivered() {
		reason := "delivery failed"
		if err != nil {
			reason = "provider unreachable"
		} else if res.Message != "" {
			reason = res.Message
		}
		if recErr := e.wallet.Record(ctx, sess.UserID, sess.Amount, model.TxOrderPayment, model.TxFailed, sess.Reference, reason); recErr != nil {
			slog.Error("failed to record paid-but-not-delivered transaction",
				"reference", sess.Reference, "error", recErr)
		}
		e.publish(model.ReceiptEvent{
			Kind:      model.ReceiptDeliveryFailed,
			UserID:    sess.UserID,
			Reference: sess.Reference,
			Amount:    sess.Amount,
			ItemLabel: sess.ItemLabel,
			Message:   "Payment confirmed but delivery failed. Please contact support with this reference.",
		})
		if err != nil {
			return err
		}
		return nil
	}

	return e.recordDelivered(ctx, sess, model.PayGateway, sess.Reference, res.ProviderRef)
}

// WalletPurchase is the synchronous wallet-paid path: reserve the
// funds first, then fulfill, and compensate with a refund only when
// the reseller explicitly reports failure. An ambiguous outcome keeps
// the debit in place for support to reconcile.
func (e *Engine) WalletPurchase(ctx context.Context, sess *model.Session) (model.Pesewas, error) {
	reference := fmt.Sprintf("wallet_%s_%d", sess.UserID, time.Now().Unix())
	sess.Reference = reference

	newBalance, err := e.wallet.Debit(ctx, sess.UserID, sess.Amount, model.TxOrderPayment, reference,
		fmt.Sprintf("wallet payment for %s", sess.ItemLabel))
	if err != nil {
		// Includes insufficient funds; nothing was mutated.
		return 0, err
	}

	res, err := e.deliver(ctx, sess)
	_ = e.sessions.Delete(ctx, sess.UserID)

	switch {
	case err != nil:
		// Ambiguous outcome: the order may still land. No refund.
		e.publish(model.ReceiptEvent{
			Kind:      model.ReceiptDeliveryFailed,
			UserID:    sess.UserID,
			Reference: reference,
			Amount:    sess.Amount,
			ItemLabel: sess.ItemLabel,
			Message:   "We could not confirm delivery. Please contact support with this reference.",
		})
		return newBalance, err

	case !res.Delivered():
		refunded, refundErr := e.wallet.Credit(ctx, sess.UserID, sess.Amount, model.TxRefund,
			reference+"_refund", fmt.Sprintf("refund for failed delivery of %s", sess.ItemLabel))
		if refundErr != nil {
			slog.Error("compensation credit failed", "reference", reference, "error", refundErr)
			return newBalance, fmt.Errorf("refund after failed delivery: %w", refundErr)
		}
		e.publish(model.ReceiptEvent{
			Kind:       model.ReceiptRefund,
			UserID:     sess.UserID,
			Reference:  reference,
			Amount:     sess.Amount,
			NewBalance: refunded,
			ItemLabel:  sess.ItemLabel,
			Message:    res.Message,
		})
		return refunded, nil

	default:
		if err := e.recordDelivered(ctx, sess, model.PayWallet, reference, res.ProviderRef); err != nil {
			return newBalance, err
		}
		return newBalance, nil
	}
}

// deliver routes the session's item to the right reseller.
func (e *Engine) deliver(ctx context.Context, sess *model.Session) (*fulfillment.Result, error) {
	if bundle := model.FindBundle(sess.ItemCode); bundle != nil {
		return e.fulfiller.OrderBundle(ctx, fulfillment.BundleOrder{
			Network:   string(bundle.Network),
			VolumeMB:  bundle.VolumeMB,
			Phone:     sess.Destination,
			Reference: sess.Reference,
		})
	}
	if svc := model.FindSMM(sess.ItemCode); svc != nil {
		quantity := int(sess.Amount * 1000 / svc.PricePerK)
		return e.fulfiller.OrderSMM(ctx, fulfillment.SMMOrder{
			ServiceID: svc.ServiceID,
			Link:      sess.Destination,
			Quantity:  quantity,
			Reference: sess.Reference,
		})
	}
	return nil, fmt.Errorf("unknown item %q", sess.ItemCode)
}

// recordDelivered writes the order row (successful deliveries only)
// plus, for gateway payments, the matching ledger entry.
func (e *Engine) recordDelivered(ctx context.Context, sess *model.Session, method model.PaymentMethod, reference, providerRef string) error {
	if method == model.PayGateway {
		// The wallet never moved, but the ledger still records the sale
		// against the reference so replays are detectable.
		err := e.wallet.Record(ctx, sess.UserID, sess.Amount, model.TxOrderPayment, model.TxSuccess, reference,
			fmt.Sprintf("gateway payment for %s", sess.ItemLabel))
		if err != nil {
			return err
		}
	}

	order := model.Order{
		ID:            reference,
		UserID:        sess.UserID,
		ItemCode:      sess.ItemCode,
		ItemLabel:     sess.ItemLabel,
		Destination:   sess.Destination,
		Amount:        sess.Amount,
		PaymentMethod: method,
		Status:        model.OrderSuccess,
		ProviderRef:   providerRef,
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	e.publish(model.ReceiptEvent{
		Kind:      model.ReceiptOrderDelivered,
		UserID:    sess.UserID,
		Reference: reference,
		Amount:    sess.Amount,
		ItemLabel: sess.ItemLabel,
		OrderID:   order.ID,
	})
	return nil
}

func (e *Engine) publish(ev model.ReceiptEvent) {
	ev.CreatedAt = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal receipt event", "error", err)
		return
	}
	if err := e.bus.Publish(TopicReceipts, data); err != nil {
		slog.Error("failed to publish receipt event",
			"kind", string(ev.Kind), "reference", ev.Reference, "error", err)
	}
}
