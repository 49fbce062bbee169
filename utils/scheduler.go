package utils

import (
	"context"
	"log"
	"time"

	"learnpay/events"
	"learnpay/models"
	"learnpay/services/enrollment"
	"learnpay/services/payments"
	"learnpay/services/verification"

	"github.com/jinzhu/now"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const stalePaymentBatch = 50

// Scheduler runs the background jobs: outbox delivery, reconciliation of
// abandoned pending payments and cleanup of expired enrollment intents.
type Scheduler struct {
	cron        *cron.Cron
	dispatcher  *events.Dispatcher
	verifier    *verification.Verifier
	payments    *payments.Manager
	enrollments *enrollment.Manager
	staleAge    time.Duration
}

// NewScheduler wires the jobs; call Start to run them.
func NewScheduler(dispatcher *events.Dispatcher, verifier *verification.Verifier, payments *payments.Manager, enrollments *enrollment.Manager, staleAge time.Duration) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		dispatcher:  dispatcher,
		verifier:    verifier,
		payments:    payments,
		enrollments: enrollments,
		staleAge:    staleAge,
	}
}

// Start registers and starts every job.
func (s *Scheduler) Start() error {
	log.Println("[SCHEDULER] Initializing scheduler...")

	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{"@every 15s", "outbox dispatch", s.DispatchOutbox},
		{"@every 10m", "stale payment reconciliation", s.ReconcileStalePayments},
		{"@hourly", "enrollment intent purge", s.PurgeIntents},
		{"0 9 * * *", "daily payment summary", s.DailySummary},
	}
	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { job.run(context.Background()) }); err != nil {
			return err
		}
		log.Printf("[SCHEDULER] Registered %s (%s)", job.name, job.spec)
	}

	s.cron.Start()
	log.Println("[SCHEDULER] Scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// DispatchOutbox delivers pending outbox events.
func (s *Scheduler) DispatchOutbox(ctx context.Context) {
	n, err := s.dispatcher.DispatchPending(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Outbox dispatch failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SCHEDULER] Dispatched %d outbox events", n)
	}
}

// ReconcileStalePayments asks the provider about payments that stayed
// pending, for students who closed the page before verifying. Only a real
// provider answer changes a payment.
func (s *Scheduler) ReconcileStalePayments(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleAge)
	stale, err := s.payments.ListStalePending(ctx, cutoff, stalePaymentBatch)
	if err != nil {
		log.Printf("[SCHEDULER] Error fetching stale payments: %v", err)
		return
	}

	completed, failed, pending := 0, 0, 0
	for _, p := range stale {
		if err := s.payments.MarkSwept(ctx, p.ID); err != nil {
			log.Printf("[SCHEDULER] %v", err)
		}
		res, err := s.verifier.Reconcile(ctx, p.ID)
		if err != nil {
			log.Printf("[SCHEDULER] Reconcile of payment %d failed: %v", p.ID, err)
			continue
		}
		switch {
		case res.Verified:
			completed++
		case res.Pending:
			pending++
		default:
			failed++
		}
	}

	if len(stale) > 0 {
		log.Printf("[SCHEDULER] Reconciled %d stale payments: %d completed, %d failed, %d still pending",
			len(stale), completed, failed, pending)
	}
}

// PurgeIntents removes expired offline enrollment intents.
func (s *Scheduler) PurgeIntents(ctx context.Context) {
	n, err := s.enrollments.PurgeExpiredIntents(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Error purging enrollment intents: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SCHEDULER] Purged %d expired enrollment intents", n)
	}
}

// Summary is the daily payment tally per settlement currency.
type Summary struct {
	Completed int
	Failed    int
	Pending   int
	Collected map[string]decimal.Decimal
}

// DailySummary logs today's payments.
func (s *Scheduler) DailySummary(ctx context.Context) {
	summary, err := s.Summarize(ctx, time.Now())
	if err != nil {
		log.Printf("[SCHEDULER] Error building daily summary: %v", err)
		return
	}

	log.Printf("[SCHEDULER] Payments today: %d completed, %d failed, %d pending",
		summary.Completed, summary.Failed, summary.Pending)
	for currency, amount := range summary.Collected {
		log.Printf("[SCHEDULER] Collected %s %s", amount.StringFixed(2), currency)
	}
}

// Summarize tallies the payments created on the day of at.
func (s *Scheduler) Summarize(ctx context.Context, at time.Time) (*Summary, error) {
	list, err := s.payments.ListSince(ctx, now.With(at).BeginningOfDay())
	if err != nil {
		return nil, err
	}

	end := now.With(at).EndOfDay()
	summary := &Summary{Collected: map[string]decimal.Decimal{}}
	for _, p := range list {
		if p.CreatedAt.After(end) {
			continue
		}
		switch p.Status {
		case models.PaymentStatusCompleted:
			summary.Completed++
			summary.Collected[p.SettlementCurrency] = summary.Collected[p.SettlementCurrency].Add(p.SettlementAmount)
		case models.PaymentStatusFailed:
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	return summary, nil
}
