// Package verification is the only place a payment becomes COMPLETED. It
// never trusts a client or webhook claim of success: every decision comes
// from a fresh provider lookup.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"learnpay/errs"
	"learnpay/events"
	"learnpay/models"
	courseModels "learnpay/models/course"
	"learnpay/services/enrollment"
	"learnpay/services/payments"
	"learnpay/services/providers"

	"gorm.io/gorm"
)

// Request is a student asking whether their payment went through.
type Request struct {
	PaymentID     uint
	CallerID      uint
	CorrelationID string // optional provider session id or reference from the redirect
}

// Result is the outcome of a verification. Pending means the provider has
// not decided yet and the caller should poll again.
type Result struct {
	Verified           bool                 `json:"verified"`
	Status             models.PaymentStatus `json:"status"`
	EnrollmentID       *uint                `json:"enrollmentId"`
	Pending            bool                 `json:"pending"`
	DuplicatePrevented bool                 `json:"duplicatePrevented,omitempty"`
	Reason             string               `json:"reason,omitempty"`
}

// Verifier reconciles payments against their provider.
type Verifier struct {
	db          *gorm.DB
	payments    *payments.Manager
	enrollments *enrollment.Manager
	providers   *providers.Registry
}

func NewVerifier(db *gorm.DB, payments *payments.Manager, enrollments *enrollment.Manager, registry *providers.Registry) *Verifier {
	return &Verifier{db: db, payments: payments, enrollments: enrollments, providers: registry}
}

// Verify reconciles a payment on behalf of its owner.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	p, err := v.payments.Get(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != req.CallerID {
		log.Printf("[VERIFY] User %d tried to verify payment %d owned by %d", req.CallerID, p.ID, p.UserID)
		return nil, errs.ErrUnauthenticated
	}
	return v.reconcile(ctx, p, strings.TrimSpace(req.CorrelationID), false)
}

// Reconcile verifies a payment for a system caller such as a webhook or the
// stale payment sweep.
func (v *Verifier) Reconcile(ctx context.Context, paymentID uint) (*Result, error) {
	p, err := v.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return v.reconcile(ctx, p, "", false)
}

// HandleWebhook authenticates a provider callback and reconciles the payment
// it refers to. The callback's own status is ignored.
func (v *Verifier) HandleWebhook(ctx context.Context, method models.PaymentMethod, body []byte, signature string) (*Result, error) {
	provider, err := v.providers.Get(method)
	if err != nil {
		return nil, err
	}
	event, err := provider.ParseWebhook(body, signature)
	if err != nil {
		return nil, err
	}

	p, err := v.payments.FindByCorrelation(ctx, method, event.CorrelationID)
	if errors.Is(err, errs.ErrPaymentNotFound) && event.PaymentRef != "" {
		id, perr := strconv.ParseUint(event.PaymentRef, 10, 64)
		if perr != nil {
			return nil, errs.ErrPaymentNotFound
		}
		p, err = v.payments.Get(ctx, uint(id))
		if err == nil && p.PaymentMethod != method {
			return nil, errs.ErrCorrelationMismatch
		}
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[WEBHOOK] %s event %q for payment %d", method, event.Type, p.ID)
	return v.reconcile(ctx, p, event.CorrelationID, true)
}

// reconcile settles p from a fresh provider lookup. clientID is a provider id
// offered by the caller; signed marks it as coming from an authenticated
// webhook.
func (v *Verifier) reconcile(ctx context.Context, p *models.Payment, clientID string, signed bool) (*Result, error) {
	switch p.Status {
	case models.PaymentStatusCompleted:
		return v.repair(ctx, p)
	case models.PaymentStatusFailed:
		return &Result{Status: models.PaymentStatusFailed, Reason: p.FailureReason}, nil
	}

	provider, err := v.providers.Get(p.PaymentMethod)
	if err != nil {
		return nil, err
	}

	correlationID, adopt, err := correlationFor(p, clientID, signed)
	if err != nil {
		return nil, err
	}
	if correlationID == "" {
		// Intent creation never stored an id; there is nothing to look up yet.
		return &Result{Status: models.PaymentStatusPending, Pending: true}, nil
	}

	lookup, err := provider.LookupPayment(ctx, correlationID)
	if err != nil {
		log.Printf("[VERIFY] Lookup of payment %d (%s) failed: %v", p.ID, correlationID, err)
		if errors.Is(err, errs.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, err)
	}

	ref := strconv.FormatUint(uint64(p.ID), 10)
	if lookup.PaymentRef != "" && lookup.PaymentRef != ref {
		log.Printf("[VERIFY] Provider id %s belongs to payment %s, not %d", correlationID, lookup.PaymentRef, p.ID)
		return nil, errs.ErrCorrelationMismatch
	}
	if adopt != nil {
		if lookup.PaymentRef != ref {
			return nil, errs.ErrCorrelationMismatch
		}
		if err := v.payments.AttachCorrelation(ctx, p.ID, *adopt); err != nil {
			return nil, err
		}
		log.Printf("[VERIFY] Adopted provider id %s for payment %d", correlationID, p.ID)
	}
	v.payments.RecordLookup(ctx, p.ID, lookup.Raw)

	switch lookup.State {
	case providers.StateSettled:
		if reason := settlementMismatch(p, lookup); reason != "" {
			log.Printf("[VERIFY] Payment %d settled with %s", p.ID, reason)
			return v.fail(ctx, p, reason)
		}
		return v.complete(ctx, p)
	case providers.StateFailed:
		reason := lookup.Reason
		if reason == "" {
			reason = "declined by provider"
		}
		return v.fail(ctx, p, reason)
	default:
		return &Result{Status: models.PaymentStatusPending, Pending: true}, nil
	}
}

// correlationFor picks the provider id to query. A client-supplied id must
// be one we stored, with two exceptions that are adopted once the provider
// confirms the id names this payment: a card checkout session id we have not
// seen yet, and any id from a signed webhook that fills an empty slot (the
// intent was created but its id never got stored).
func correlationFor(p *models.Payment, clientID string, signed bool) (string, *payments.Correlation, error) {
	if clientID == "" {
		return p.CorrelationID(), nil, nil
	}
	if p.OwnsCorrelation(clientID) {
		return clientID, nil, nil
	}

	var slot payments.Correlation
	switch {
	case p.PaymentMethod == models.PaymentMethodCard && strings.HasPrefix(clientID, "cs_"):
		if p.ProviderSessionID == nil {
			slot.SessionID = clientID
		}
	case signed && p.PaymentMethod == models.PaymentMethodCard:
		if p.ProviderIntentID == nil {
			slot.IntentID = clientID
		}
	case signed && p.PaymentMethod == models.PaymentMethodRegional:
		if p.ProviderReference == nil {
			slot.Reference = clientID
		}
	}
	if slot.SessionID == "" && slot.IntentID == "" && slot.Reference == "" {
		return "", nil, errs.ErrCorrelationMismatch
	}
	return clientID, &slot, nil
}

func settlementMismatch(p *models.Payment, l *providers.Lookup) string {
	if !l.Amount.IsZero() && !l.Amount.Equal(p.SettlementAmount) {
		return fmt.Sprintf("amount mismatch: expected %s, provider reported %s", p.SettlementAmount.StringFixed(2), l.Amount.StringFixed(2))
	}
	if l.Currency != "" && !strings.EqualFold(l.Currency, p.SettlementCurrency) {
		return fmt.Sprintf("currency mismatch: expected %s, provider reported %s", p.SettlementCurrency, l.Currency)
	}
	return ""
}

// complete applies a confirmed settlement: payment COMPLETED, enrollment
// live and linked, events written, all in one transaction.
func (v *Verifier) complete(ctx context.Context, p *models.Payment) (*Result, error) {
	var result *Result
	raced := false

	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := v.payments.MarkCompleted(tx, p.ID)
		if err != nil {
			return err
		}
		if !moved {
			raced = true
			return nil
		}

		r, err := v.activate(tx, p)
		if err != nil {
			return err
		}
		result = r

		p.Status = models.PaymentStatusCompleted
		p.EnrollmentID = r.EnrollmentID
		return events.Publish(tx, events.TopicPaymentCompleted, events.AggregatePayment, p.ID, payments.PaymentEvent(p, ""))
	})
	if err != nil {
		return nil, fmt.Errorf("complete payment %d: %w", p.ID, err)
	}

	if raced {
		// Another verification got there first; report what it decided.
		current, err := v.payments.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return v.reconcile(ctx, current, "", false)
	}

	log.Printf("[VERIFY] Payment %d completed, enrollment %d (duplicate prevented: %t)", p.ID, *result.EnrollmentID, result.DuplicatePrevented)
	return result, nil
}

// activate upserts the enrollment for a completed payment and links it.
func (v *Verifier) activate(tx *gorm.DB, p *models.Payment) (*Result, error) {
	e, act, err := v.enrollments.ActivateForPayment(tx, p.UserID, p.CourseID, p.ID)
	if err != nil {
		return nil, err
	}
	if err := v.payments.LinkEnrollment(tx, p.ID, e.ID); err != nil {
		return nil, err
	}

	id := e.ID
	return &Result{
		Verified:           true,
		Status:             models.PaymentStatusCompleted,
		EnrollmentID:       &id,
		DuplicatePrevented: act.DuplicatePrevented,
	}, nil
}

// repair answers for an already completed payment. When the linked
// enrollment is live nothing is written; a missing or still pending
// enrollment is re-driven.
func (v *Verifier) repair(ctx context.Context, p *models.Payment) (*Result, error) {
	if p.EnrollmentID != nil {
		e, err := v.enrollments.Get(ctx, *p.EnrollmentID)
		switch {
		case err == nil && (e.IsLive() || e.Status == courseModels.EnrollmentDropped):
			// A drop is an administrative decision that a repair must not undo.
			id := e.ID
			return &Result{Verified: true, Status: models.PaymentStatusCompleted, EnrollmentID: &id}, nil
		case err != nil && !errors.Is(err, errs.ErrEnrollmentNotFound):
			return nil, err
		}
	}

	log.Printf("[VERIFY] Payment %d is completed without a live enrollment, repairing", p.ID)
	var result *Result
	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := v.activate(tx, p)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repair payment %d: %w", p.ID, err)
	}
	return result, nil
}

func (v *Verifier) fail(ctx context.Context, p *models.Payment, reason string) (*Result, error) {
	moved, err := v.payments.MarkFailed(ctx, p.ID, reason)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := v.payments.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return v.reconcile(ctx, current, "", false)
	}

	log.Printf("[VERIFY] Payment %d failed: %s", p.ID, reason)
	return &Result{Status: models.PaymentStatusFailed, Reason: reason}, nil
}
