package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"sikabot/internal/fulfillment"
	"sikabot/internal/gateway"
	"sikabot/internal/model"
	"sikabot/internal/repository"
	"sikabot/internal/session"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeWallet struct {
	balances map[string]model.Pesewas
	txns     []model.Transaction
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{balances: make(map[string]model.Pesewas)}
}

func (w *fakeWallet) seen(reference string) bool {
	for _, t := range w.txns {
		if t.Reference == reference {
			return true
		}
	}
	return false
}

func (w *fakeWallet) append(userID string, amount model.Pesewas, txType model.TxType, status model.TxStatus, reference string, prev, next model.Pesewas) {
	w.txns = append(w.txns, model.Transaction{
		UserID: userID, Reference: reference, Type: txType, Status: status,
		Amount: amount, PreviousBalance: prev, NewBalance: next,
	})
}

func (w *fakeWallet) GetBalance(ctx context.Context, userID string) (model.Pesewas, error) {
	return w.balances[userID], nil
}

func (w *fakeWallet) Credit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	if w.seen(reference) {
		return 0, repository.ErrAlreadyProcessed
	}
	prev := w.balances[userID]
	w.balances[userID] = prev + amount
	w.append(userID, amount, txType, model.TxSuccess, reference, prev, prev+amount)
	return prev + amount, nil
}

func (w *fakeWallet) Debit(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, reference, description string) (model.Pesewas, error) {
	if w.seen(reference) {
		return 0, repository.ErrAlreadyProcessed
	}
	prev := w.balances[userID]
	if prev < amount {
		return 0, repository.ErrInsufficientFunds
	}
	w.balances[userID] = prev - amount
	w.append(userID, amount, txType, model.TxSuccess, reference, prev, prev-amount)
	return prev - amount, nil
}

func (w *fakeWallet) Record(ctx context.Context, userID string, amount model.Pesewas, txType model.TxType, status model.TxStatus, reference, description string) error {
	if w.seen(reference) {
		return repository.ErrAlreadyProcessed
	}
	bal := w.balances[userID]
	w.append(userID, amount, txType, status, reference, bal, bal)
	return nil
}

func (w *fakeWallet) ReferenceSeen(ctx context.Context, reference string) (bool, error) {
	return w.seen(reference), nil
}

func (w *fakeWallet) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return w.txns, nil
}

type fakeOrders struct {
	orders []model.Order
}

func (o *fakeOrders) Create(ctx context.Context, order model.Order) error {
	for _, existing := range o.orders {
		if existing.ID == order.ID {
			return repository.ErrAlreadyProcessed
		}
	}
	o.orders = append(o.orders, order)
	return nil
}

func (o *fakeOrders) Get(ctx context.Context, orderID string) (*model.Order, error) {
	for i := range o.orders {
		if o.orders[i].ID == orderID {
			return &o.orders[i], nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (o *fakeOrders) ListByUser(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	return o.orders, nil
}

type fakeGateway struct {
	sigOK      bool
	verifyData *gateway.VerifyData
	verifyErr  error
	initResult *gateway.InitializeResult
	initErr    error
}

func (g *fakeGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.initResult != nil {
		return g.initResult, nil
	}
	return &gateway.InitializeResult{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyData, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.verifyData != nil {
		return g.verifyData, nil
	}
	return &gateway.VerifyData{Status: gateway.StatusSuccess, Reference: reference}, nil
}

func (g *fakeGateway) ValidateSignature(rawBody []byte, headerSignature string) bool {
	return g.sigOK
}

type fakeFulfiller struct {
	result     *fulfillment.Result
	err        error
	calls      int
	lastBundle *fulfillment.BundleOrder
	lastSMM    *fulfillment.SMMOrder
}

func (f *fakeFulfiller) OrderBundle(ctx context.Context, order fulfillment.BundleOrder) (*fulfillment.Result, error) {
	f.calls++
	f.lastBundle = &order
	return f.result, f.err
}

func (f *fakeFulfiller) OrderSMM(ctx context.Context, order fulfillment.SMMOrder) (*fulfillment.Result, error) {
	f.calls++
	f.lastSMM = &order
	return f.result, f.err
}

type fakeLocks struct {
	denied bool
}

func (l *fakeLocks) Acquire(ctx context.Context, reference string) (bool, error) {
	return !l.denied, nil
}

func (l *fakeLocks) Release(ctx context.Context, reference string) error { return nil }

type fakeBus struct {
	events []model.ReceiptEvent
}

func (b *fakeBus) Publish(topic string, data []byte) error {
	var ev model.ReceiptEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) last() *model.ReceiptEvent {
	if len(b.events) == 0 {
		return nil
	}
	return &b.events[len(b.events)-1]
}

// ── Harness ──────────────────────────────────────────────────────────────────

type harness struct {
	engine    *Engine
	sessions  session.Store
	wallet    *fakeWallet
	orders    *fakeOrders
	gw        *fakeGateway
	fulfiller *fakeFulfiller
	locks     *fakeLocks
	bus       *fakeBus
}

func newHarness() *harness {
	h := &harness{
		sessions:  session.NewMemoryStore(),
		wallet:    newFakeWallet(),
		orders:    &fakeOrders{},
		gw:        &fakeGateway{sigOK: true},
		fulfiller: &fakeFulfiller{result: &fulfillment.Result{Status: fulfillment.StatusSuccess, ProviderRef: "prov-1"}},
		locks:     &fakeLocks{},
		bus:       &fakeBus{},
	}
	h.engine = NewEngine(h.sessions, h.wallet, h.orders, h.gw, h.fulfiller, h.locks, h.bus)
	return h
}

func (h *harness) putSession(t *testing.T, sess model.Session) {
	t.Helper()
	if err := h.sessions.Put(context.Background(), sess); err != nil {
		t.Fatalf("put session: %v", err)
	}
}

func chargeSuccessBody(reference string, amount model.Pesewas) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"reference":"%s","amount":%d,"status":"success"}}`,
		reference, amount))
}

// ── Webhook path ─────────────────────────────────────────────────────────────

func TestWebhookDepositCreditsWallet(t *testing.T) {
	h := newHarness()
	ref := "deposit_555_1700000000"
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})

	if err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody(ref, 2000), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	if got := h.wallet.balances["555"]; got != 2000 {
		t.Errorf("balance = %d, want 2000", got)
	}
	if len(h.wallet.txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(h.wallet.txns))
	}
	txn := h.wallet.txns[0]
	if txn.Type != model.TxDeposit || txn.Amount != 2000 || txn.NewBalance != 2000 {
		t.Errorf("unexpected transaction: %+v", txn)
	}
	if _, err := h.sessions.Get(context.Background(), "555"); !errors.Is(err, session.ErrNoSession) {
		t.Error("session should be deleted after consumption")
	}
	if ev := h.bus.last(); ev == nil || ev.Kind != model.ReceiptDeposit || ev.NewBalance != 2000 {
		t.Errorf("unexpected receipt: %+v", ev)
	}
}

func TestWebhookInvalidSignatureMutatesNothing(t *testing.T) {
	h := newHarness()
	h.gw.sigOK = false
	ref := "deposit_555_1700000000"
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})

	err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody(ref, 2000), "bad")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}

	if got := h.wallet.balances["555"]; got != 0 {
		t.Errorf("balance mutated to %d on a forged event", got)
	}
	if _, err := h.sessions.Get(context.Background(), "555"); err != nil {
		t.Error("session must survive a dropped event")
	}
	if len(h.bus.events) != 0 {
		t.Error("no receipt should be published for a dropped event")
	}
}

func TestWebhookNoSessionIsNoop(t *testing.T) {
	h := newHarness()

	if err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody("deposit_999_1700000000", 500), "sig"); err != nil {
		t.Fatalf("missing session must be acknowledged quietly, got %v", err)
	}
	if got := h.wallet.balances["999"]; got != 0 {
		t.Errorf("balance mutated without a session: %d", got)
	}
}

func TestWebhookStaleReferenceIsNoop(t *testing.T) {
	h := newHarness()
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: "deposit_555_1700000099", Amount: 2000,
	})

	if err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody("deposit_555_1700000000", 2000), "sig"); err != nil {
		t.Fatalf("stale reference must be acknowledged quietly, got %v", err)
	}
	if got := h.wallet.balances["555"]; got != 0 {
		t.Errorf("balance mutated on stale reference: %d", got)
	}
	if _, err := h.sessions.Get(context.Background(), "555"); err != nil {
		t.Error("session must survive a stale event")
	}
}

func TestWebhookReplayDoesNotDoubleCredit(t *testing.T) {
	h := newHarness()
	ref := "deposit_555_1700000000"
	body := chargeSuccessBody(ref, 2000)
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})

	if err := h.engine.HandleWebhook(context.Background(), body, "sig"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Second delivery: session is gone, so the event no-ops.
	if err := h.engine.HandleWebhook(context.Background(), body, "sig"); err != nil {
		t.Fatalf("replay must be acknowledged quietly, got %v", err)
	}
	// Even with a freshly recreated session for the same reference the
	// ledger's replay guard holds.
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})
	if err := h.engine.HandleWebhook(context.Background(), body, "sig"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrAlreadyProcessed", err)
	}

	if got := h.wallet.balances["555"]; got != 2000 {
		t.Errorf("balance = %d after replays, want 2000", got)
	}
	if len(h.wallet.txns) != 1 {
		t.Errorf("transactions = %d after replays, want 1", len(h.wallet.txns))
	}
}

func TestWebhookGatewayPurchaseDelivers(t *testing.T) {
	h := newHarness()
	ref := "purchase_777_1700000000"
	h.putSession(t, model.Session{
		UserID: "777", Flow: model.FlowPurchase, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN",
		Destination: "0244123456",
	})

	if err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody(ref, 2400), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	if len(h.orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.orders.orders))
	}
	order := h.orders.orders[0]
	if order.PaymentMethod != model.PayGateway || order.Status != model.OrderSuccess || order.ItemLabel != "5GB MTN" {
		t.Errorf("unexpected order: %+v", order)
	}
	if h.fulfiller.lastBundle == nil || h.fulfiller.lastBundle.Phone != "0244123456" {
		t.Errorf("fulfiller called with %+v", h.fulfiller.lastBundle)
	}
	// Gateway money never touches the wallet.
	if got := h.wallet.balances["777"]; got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestWebhookGatewayPurchaseDeliveryFailure(t *testing.T) {
	h := newHarness()
	h.fulfiller.result = &fulfillment.Result{Status: fulfillment.StatusFailed, Message: "out of stock"}
	ref := "purchase_777_1700000000"
	h.putSession(t, model.Session{
		UserID: "777", Flow: model.FlowPurchase, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN",
		Destination: "0244123456",
	})

	if err := h.engine.HandleWebhook(context.Background(), chargeSuccessBody(ref, 2400), "sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	// Paid but not delivered: no order, a failed ledger entry, and a
	// support-facing receipt. No refund on the gateway-paid path.
	if len(h.orders.orders) != 0 {
		t.Error("no order may be written for a failed delivery")
	}
	if len(h.wallet.txns) != 1 || h.wallet.txns[0].Status != model.TxFailed {
		t.Errorf("expected one failed transaction, got %+v", h.wallet.txns)
	}
	ev := h.bus.last()
	if ev == nil || ev.Kind != model.ReceiptDeliveryFailed {
		t.Errorf("unexpected receipt: %+v", ev)
	}
	if _, err := h.sessions.Get(context.Background(), "777"); !errors.Is(err, session.ErrNoSession) {
		t.Error("session is consumed even when delivery fails")
	}
}

// ── Manual verify path ───────────────────────────────────────────────────────

func TestVerifyPaymentDeposit(t *testing.T) {
	h := newHarness()
	ref := "deposit_555_1700000000"
	h.gw.verifyData = &gateway.VerifyData{Status: gateway.StatusSuccess, Reference: ref, Amount: 2000}
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})

	if err := h.engine.VerifyPayment(context.Background(), "555", ref); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := h.wallet.balances["555"]; got != 2000 {
		t.Errorf("balance = %d, want 2000", got)
	}
}

func TestVerifyPaymentReferenceMismatchLeavesSession(t *testing.T) {
	h := newHarness()
	stored := "deposit_555_1700000099"
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: stored, Amount: 2000,
	})

	err := h.engine.VerifyPayment(context.Background(), "555", "deposit_555_1700000000")
	if !errors.Is(err, ErrReferenceMismatch) {
		t.Fatalf("err = %v, want ErrReferenceMismatch", err)
	}
	if got := h.wallet.balances["555"]; got != 0 {
		t.Errorf("balance mutated on mismatch: %d", got)
	}
	sess, err := h.sessions.Get(context.Background(), "555")
	if err != nil || sess.Reference != stored {
		t.Error("mismatch must leave the session intact")
	}
}

func TestVerifyPaymentNoSession(t *testing.T) {
	h := newHarness()
	err := h.engine.VerifyPayment(context.Background(), "555", "deposit_555_1700000000")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestVerifyPaymentNotConfirmed(t *testing.T) {
	h := newHarness()
	h.gw.verifyErr = gateway.ErrVerifyFailed
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: "deposit_555_1700000000", Amount: 2000,
	})

	err := h.engine.VerifyPayment(context.Background(), "555", "deposit_555_1700000000")
	if !errors.Is(err, gateway.ErrVerifyFailed) {
		t.Fatalf("err = %v, want ErrVerifyFailed", err)
	}
	if _, err := h.sessions.Get(context.Background(), "555"); err != nil {
		t.Error("failed verification must leave the session for a later retry")
	}
}

func TestDualPathConvergence(t *testing.T) {
	ref := "purchase_777_1700000000"
	makeSession := func() model.Session {
		return model.Session{
			UserID: "777", Flow: model.FlowPurchase, Step: model.StepPaymentInitiated,
			Reference: ref, Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN",
			Destination: "0244123456",
		}
	}

	webhook := newHarness()
	webhook.putSession(t, makeSession())
	if err := webhook.engine.HandleWebhook(context.Background(), chargeSuccessBody(ref, 2400), "sig"); err != nil {
		t.Fatalf("webhook path: %v", err)
	}

	manual := newHarness()
	manual.gw.verifyData = &gateway.VerifyData{Status: gateway.StatusSuccess, Reference: ref, Amount: 2400}
	manual.putSession(t, makeSession())
	if err := manual.engine.VerifyPayment(context.Background(), "777", ref); err != nil {
		t.Fatalf("manual path: %v", err)
	}

	a, b := webhook.orders.orders[0], manual.orders.orders[0]
	a.CreatedAt, b.CreatedAt = b.CreatedAt, a.CreatedAt
	if a != b {
		t.Errorf("paths diverged:\nwebhook %+v\nmanual  %+v", a, b)
	}
	ta, tb := webhook.wallet.txns[0], manual.wallet.txns[0]
	if ta.Type != tb.Type || ta.Amount != tb.Amount || ta.Status != tb.Status {
		t.Errorf("ledger diverged:\nwebhook %+v\nmanual  %+v", ta, tb)
	}
}

func TestConsumeLockDenied(t *testing.T) {
	h := newHarness()
	h.locks.denied = true
	ref := "deposit_555_1700000000"
	h.putSession(t, model.Session{
		UserID: "555", Flow: model.FlowDeposit, Step: model.StepPaymentInitiated,
		Reference: ref, Amount: 2000,
	})

	err := h.engine.VerifyPayment(context.Background(), "555", ref)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("err = %v, want ErrAlreadyProcessed", err)
	}
	if got := h.wallet.balances["555"]; got != 0 {
		t.Errorf("balance mutated while lock was held elsewhere: %d", got)
	}
}

// ── Wallet-paid purchase ─────────────────────────────────────────────────────

func TestWalletPurchaseSuccess(t *testing.T) {
	h := newHarness()
	h.wallet.balances["888"] = 3000
	sess := model.Session{
		UserID: "888", Flow: model.FlowPurchase, Step: model.StepAwaitingPaymentMethod,
		Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN", Destination: "0244123456",
	}
	h.putSession(t, sess)

	newBalance, err := h.engine.WalletPurchase(context.Background(), &sess)
	if err != nil {
		t.Fatalf("wallet purchase: %v", err)
	}
	if newBalance != 600 {
		t.Errorf("new balance = %d, want 600", newBalance)
	}
	if len(h.orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.orders.orders))
	}
	if h.orders.orders[0].PaymentMethod != model.PayWallet {
		t.Errorf("payment method = %s, want wallet", h.orders.orders[0].PaymentMethod)
	}
	if _, err := h.sessions.Get(context.Background(), "888"); !errors.Is(err, session.ErrNoSession) {
		t.Error("session should be cleared after wallet purchase")
	}
}

func TestWalletPurchaseCompensatesOnFailedDelivery(t *testing.T) {
	h := newHarness()
	h.wallet.balances["888"] = 3000
	h.fulfiller.result = &fulfillment.Result{Status: fulfillment.StatusFailed, Message: "network down"}
	sess := model.Session{
		UserID: "888", Flow: model.FlowPurchase, Step: model.StepAwaitingPaymentMethod,
		Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN", Destination: "0244123456",
	}
	h.putSession(t, sess)

	newBalance, err := h.engine.WalletPurchase(context.Background(), &sess)
	if err != nil {
		t.Fatalf("wallet purchase: %v", err)
	}

	// Compensation law: debit followed by refund nets to zero.
	if newBalance != 3000 || h.wallet.balances["888"] != 3000 {
		t.Errorf("balance = %d, want 3000", h.wallet.balances["888"])
	}
	if len(h.orders.orders) != 0 {
		t.Error("no order may exist after a compensated purchase")
	}
	if ev := h.bus.last(); ev == nil || ev.Kind != model.ReceiptRefund {
		t.Errorf("unexpected receipt: %+v", ev)
	}
}

func TestWalletPurchaseAmbiguousOutcomeKeepsDebit(t *testing.T) {
	h := newHarness()
	h.wallet.balances["888"] = 3000
	h.fulfiller.result = nil
	h.fulfiller.err = fulfillment.ErrFulfillmentUnavailable
	sess := model.Session{
		UserID: "888", Flow: model.FlowPurchase, Step: model.StepAwaitingPaymentMethod,
		Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN", Destination: "0244123456",
	}
	h.putSession(t, sess)

	_, err := h.engine.WalletPurchase(context.Background(), &sess)
	if !errors.Is(err, fulfillment.ErrFulfillmentUnavailable) {
		t.Fatalf("err = %v, want ErrFulfillmentUnavailable", err)
	}

	// Ambiguous outcome: the order may still land, so no refund.
	if h.wallet.balances["888"] != 600 {
		t.Errorf("balance = %d, want 600 (debit kept)", h.wallet.balances["888"])
	}
	if ev := h.bus.last(); ev == nil || ev.Kind != model.ReceiptDeliveryFailed {
		t.Errorf("unexpected receipt: %+v", ev)
	}
}

func TestWalletPurchaseInsufficientFunds(t *testing.T) {
	h := newHarness()
	h.wallet.balances["888"] = 100
	sess := model.Session{
		UserID: "888", Flow: model.FlowPurchase, Step: model.StepAwaitingPaymentMethod,
		Amount: 2400, ItemCode: "mtn-5gb", ItemLabel: "5GB MTN", Destination: "0244123456",
	}
	h.putSession(t, sess)

	_, err := h.engine.WalletPurchase(context.Background(), &sess)
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if h.wallet.balances["888"] != 100 {
		t.Errorf("balance = %d, want 100 (unchanged)", h.wallet.balances["888"])
	}
	if h.fulfiller.calls != 0 {
		t.Error("fulfiller must not be called without a successful debit")
	}
}
