package banksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/jobs"
	"github.com/dvloznov/openfinance-sync/internal/logger"
	"github.com/dvloznov/openfinance-sync/internal/metrics"
	"github.com/dvloznov/openfinance-sync/internal/pluggy"
)

// Progress steps shown to polling clients.
const (
	StepTransactions = "Fetching transactions..."
	StepBills        = "Fetching credit card bills..."
)

// Stages tag non-fatal failures recorded on the job.
const (
	StageAccounts     = "accounts"
	StageTransactions = "transactions"
	StageBills        = "bills"
)

const (
	progressAccounts = 20
	progressBills    = 80
	progressDone     = 100
)

// Config tunes one orchestrator.
type Config struct {
	BatchCeiling int
	LookbackDays int

	// AccountConcurrency bounds parallel account syncs within a job.
	// 1 keeps the listed order.
	AccountConcurrency int
}

// Orchestrator runs the sync pipeline of one job: accounts, then
// transactions per account, then credit card bills. Per-account failures
// are recorded and skipped; only authentication and account listing
// failures fail the job.
type Orchestrator struct {
	aggregator  Aggregator
	store       docstore.Store
	jobs        JobRecorder
	planner     *Planner
	cfg         Config
	sink        Sink
	archiver    Archiver
	categorizer Categorizer
	now         func() time.Time
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithSink exports committed transactions to s.
func WithSink(s Sink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithArchiver archives raw aggregator payloads through a.
func WithArchiver(a Archiver) Option { return func(o *Orchestrator) { o.archiver = a } }

// WithCategorizer fills uncategorized transactions through c.
func WithCategorizer(c Categorizer) Option { return func(o *Orchestrator) { o.categorizer = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New creates an orchestrator.
func New(agg Aggregator, store docstore.Store, recorder JobRecorder, cfg Config, opts ...Option) *Orchestrator {
	if cfg.AccountConcurrency < 1 {
		cfg.AccountConcurrency = 1
	}
	o := &Orchestrator{
		aggregator: agg,
		store:      store,
		jobs:       recorder,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.planner = NewPlanner(store, cfg.LookbackDays)
	o.planner.now = o.now
	return o
}

// plannedAccount is an account with its classification and fetch window,
// decided before the account document is rewritten.
type plannedAccount struct {
	raw   pluggy.Account
	class Classification
	from  civil.Date
}

// run is the mutable state of one job execution.
type run struct {
	req jobs.SyncRequest

	mu            sync.Mutex
	accountErrors []jobs.AccountError
	committed     []domain.TransactionDoc
	transactions  int // committed, not staged
	finished      int
}

func (r *run) addError(accountID, stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountErrors = append(r.accountErrors, jobs.AccountError{AccountID: accountID, Stage: stage, Error: err.Error()})
}

func (r *run) errors() []jobs.AccountError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.AccountError(nil), r.accountErrors...)
}

// Run executes the pipeline for a job whose processing record already
// exists, and writes the terminal state. The returned error is the fatal
// error that failed the job.
func (o *Orchestrator) Run(ctx context.Context, req jobs.SyncRequest) error {
	start := o.now()
	log := logger.FromContext(ctx).With().
		Str("job_id", req.JobID).
		Str("user_id", req.UserID).
		Str("item_id", req.ItemID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().Msg("Starting sync job")

	r := &run{req: req}
	accounts, err := o.execute(ctx, r)
	metrics.SyncJobDuration.Observe(o.now().Sub(start).Seconds())

	// Terminal writes must land even when the job was cancelled by shutdown.
	final := context.WithoutCancel(ctx)
	now := o.now()

	if err != nil {
		metrics.SyncJobs.WithLabelValues(string(jobs.OutcomeFailed)).Inc()
		log.Error().Err(err).Msg("Sync job failed")
		o.update(final, req, jobs.Update{
			Status:        jobs.JobStatusFailed,
			Outcome:       jobs.OutcomeFailed,
			Error:         err.Error(),
			AccountErrors: r.errors(),
			UpdatedAt:     now,
			CompletedAt:   &now,
		})
		return err
	}

	accountErrors := r.errors()
	outcome := jobs.OutcomeSuccess
	message := fmt.Sprintf("Synced %d accounts and %d transactions", accounts, r.transactions)
	if len(accountErrors) > 0 {
		outcome = jobs.OutcomePartialFailure
		message += fmt.Sprintf(" (%d skipped)", len(accountErrors))
	}

	metrics.SyncJobs.WithLabelValues(string(outcome)).Inc()
	log.Info().Str("outcome", string(outcome)).Int("accounts", accounts).Int("transactions", r.transactions).Msg("Sync job completed")

	o.update(final, req, jobs.Update{
		Status:        jobs.JobStatusCompleted,
		Progress:      progressDone,
		Message:       message,
		Outcome:       outcome,
		AccountErrors: accountErrors,
		UpdatedAt:     now,
		CompletedAt:   &now,
	})
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (int, error) {
	raw, err := o.aggregator.ListAccounts(ctx, r.req.ItemID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrAccountList, err)
	}
	o.archive(ctx, r, "accounts", raw)

	// Watermarks are read before the account upsert rewrites updatedAt.
	accounts := make([]plannedAccount, len(raw))
	for i, a := range raw {
		accounts[i] = plannedAccount{
			raw:   a,
			class: Classify(a),
			from:  o.planner.PlanFromDate(ctx, r.req.UserID, a.ID),
		}
	}

	o.stageAccounts(ctx, r, accounts)
	o.progress(ctx, r, progressAccounts, StepTransactions)

	if err := o.syncTransactions(ctx, r, accounts); err != nil {
		return len(accounts), err
	}

	o.progress(ctx, r, progressBills, StepBills)
	if err := o.syncBills(ctx, r, accounts); err != nil {
		return len(accounts), err
	}

	o.recordItem(ctx, r, len(accounts))
	return len(accounts), nil
}

func (o *Orchestrator) stageAccounts(ctx context.Context, r *run, accounts []plannedAccount) {
	log := logger.FromContext(ctx)
	w := NewWriter(o.store, o.cfg.BatchCeiling)
	coll := docstore.UserCollection(r.req.UserID, domain.CollectionAccounts)
	now := o.now()

	for _, a := range accounts {
		doc := MapAccount(a.raw, a.class, now)
		if err := w.Stage(ctx, coll, a.raw.ID, doc, true); err != nil {
			if errors.Is(err, domain.ErrBatchCommit) {
				break
			}
			r.addError(a.raw.ID, StageAccounts, err)
			continue
		}
		metrics.SyncAccounts.WithLabelValues(string(doc.Bucket)).Inc()
		log.Debug().
			Str("account_id", a.raw.ID).
			Str("bucket", string(doc.Bucket)).
			Str("balance", domain.FormatAmount(doc.Balance, doc.CurrencyCode)).
			Msg("Account staged")
	}

	if err := w.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("Account phase aborted")
		r.addError("", StageAccounts, err)
	}
}

func (o *Orchestrator) syncTransactions(ctx context.Context, r *run, accounts []plannedAccount) error {
	log := logger.FromContext(ctx)
	w := NewWriter(o.store, o.cfg.BatchCeiling)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.AccountConcurrency)
	for _, a := range accounts {
		g.Go(func() error {
			if err := o.syncAccount(gctx, r, w, a); err != nil {
				return err
			}
			o.accountFinished(gctx, r, len(accounts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	err := w.Flush(ctx)
	r.transactions = committedTransactions(w, r.req.UserID)
	if err != nil {
		log.Error().Err(err).Int("committed", r.transactions).Msg("Transaction phase aborted")
		r.addError("", StageTransactions, err)
		return nil
	}

	o.export(ctx, r)
	return nil
}

// committedTransactions counts the transaction writes w actually committed.
func committedTransactions(w *Writer, userID string) int {
	n := 0
	for _, c := range []string{domain.CollectionTransactions, domain.CollectionCreditCardTransactions, domain.CollectionInvestments} {
		n += w.CommittedIn(docstore.UserCollection(userID, c))
	}
	return n
}

// syncAccount fetches, maps and stages one account's transactions, then
// advances its watermark. It returns an error only when the job must fail.
func (o *Orchestrator) syncAccount(ctx context.Context, r *run, w *Writer, a plannedAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.Err() != nil {
		return nil
	}

	log := logger.FromContext(ctx).With().Str("account_id", a.raw.ID).Logger()

	txs, err := o.aggregator.ListTransactions(ctx, a.raw.ID, a.from)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) || ctx.Err() != nil {
			return fmt.Errorf("account %s: %w", a.raw.ID, err)
		}
		o.accountFailed(ctx, r, a.raw.ID, StageTransactions, fmt.Errorf("%w: account %s: %w", domain.ErrAccountSync, a.raw.ID, err))
		return nil
	}
	o.archive(ctx, r, "transactions-"+a.raw.ID, txs)

	now := o.now()
	mapped := make([]MappedDocument, len(txs))
	for i, tx := range txs {
		mapped[i] = MapTransaction(tx, a.raw, a.class)
		mapped[i].Doc.SyncedAt = now
	}
	o.categorize(ctx, mapped)

	collection := TargetCollection(a.class)
	coll := docstore.UserCollection(r.req.UserID, collection)
	// Transactions replace the stored document: a merge patch would drop the
	// null keys inside raw and keep keys the provider no longer sends.
	for _, m := range mapped {
		if err := w.Stage(ctx, coll, m.ID, m.Doc, false); err != nil {
			if !errors.Is(err, domain.ErrBatchCommit) {
				o.accountFailed(ctx, r, a.raw.ID, StageTransactions, fmt.Errorf("%w: account %s: %w", domain.ErrAccountSync, a.raw.ID, err))
			}
			return nil
		}
	}

	// Staged after the transactions so it never commits ahead of them.
	watermark := map[string]any{"transactionsSyncedAt": now}
	accounts := docstore.UserCollection(r.req.UserID, domain.CollectionAccounts)
	if err := w.Stage(ctx, accounts, a.raw.ID, watermark, true); err != nil {
		return nil
	}

	metrics.SyncTransactions.WithLabelValues(collection).Add(float64(len(mapped)))
	log.Info().Int("transactions", len(mapped)).Str("from", a.from.String()).Str("collection", collection).Msg("Account transactions staged")

	r.mu.Lock()
	for _, m := range mapped {
		r.committed = append(r.committed, m.Doc)
	}
	r.mu.Unlock()
	return nil
}

func (o *Orchestrator) syncBills(ctx context.Context, r *run, accounts []plannedAccount) error {
	log := logger.FromContext(ctx)
	w := NewWriter(o.store, o.cfg.BatchCeiling)

	var source BillSource = o.aggregator
	if o.archiver != nil {
		source = archivingBills{source: source, archive: func(ctx context.Context, name string, payload any) {
			o.archive(ctx, r, name, payload)
		}}
	}
	bills := NewBillAggregator(source)
	bills.now = o.now

	for _, a := range accounts {
		if !a.class.IsCredit {
			continue
		}
		err := bills.UpdateBills(ctx, w, r.req.UserID, a.raw)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAuth) || ctx.Err() != nil:
			return fmt.Errorf("account %s: %w", a.raw.ID, err)
		case errors.Is(err, domain.ErrBatchCommit):
			// Recorded by Flush below.
		default:
			o.accountFailed(ctx, r, a.raw.ID, StageBills, err)
		}
		if w.Err() != nil {
			break
		}
	}

	if err := w.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("Bill phase aborted")
		r.addError("", StageBills, err)
	}
	return nil
}

func (o *Orchestrator) recordItem(ctx context.Context, r *run, accountCount int) {
	item := domain.Item{
		ID:            r.req.ItemID,
		LastSyncJobID: r.req.JobID,
		LastSyncedAt:  o.now(),
		AccountCount:  accountCount,
	}
	w := NewWriter(o.store, o.cfg.BatchCeiling)
	coll := docstore.UserCollection(r.req.UserID, domain.CollectionItems)

	err := w.Stage(ctx, coll, item.ID, item, true)
	if err == nil {
		err = w.Flush(ctx)
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record item")
	}
}

func (o *Orchestrator) accountFailed(ctx context.Context, r *run, accountID, stage string, err error) {
	log := logger.FromContext(ctx)
	log.Error().Err(err).Str("account_id", accountID).Str("stage", stage).Msg("Skipping account")
	metrics.SyncAccountFailures.WithLabelValues(stage).Inc()
	r.addError(accountID, stage, err)
}

// accountFinished advances progress linearly between the account and bill steps.
func (o *Orchestrator) accountFinished(ctx context.Context, r *run, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finished++
	p := progressAccounts + (progressBills-progressAccounts)*r.finished/total
	o.update(ctx, r.req, jobs.Update{Progress: p, UpdatedAt: o.now()})
}

func (o *Orchestrator) progress(ctx context.Context, r *run, p int, step string) {
	o.update(ctx, r.req, jobs.Update{Progress: p, Step: step, UpdatedAt: o.now()})
}

func (o *Orchestrator) update(ctx context.Context, req jobs.SyncRequest, u jobs.Update) {
	if err := o.jobs.UpdateJob(ctx, req.UserID, req.JobID, u); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to update sync job")
	}
}

func (o *Orchestrator) categorize(ctx context.Context, mapped []MappedDocument) {
	if o.categorizer == nil {
		return
	}

	var pending []domain.TransactionDoc
	for _, m := range mapped {
		if m.Doc.Category == domain.DefaultCategory {
			pending = append(pending, m.Doc)
		}
	}
	if len(pending) == 0 {
		return
	}

	categories, err := o.categorizer.Categorize(ctx, pending)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("transactions", len(pending)).Msg("Categorization failed, keeping defaults")
		return
	}
	for i := range mapped {
		if c, ok := categories[mapped[i].ID]; ok && c != "" && mapped[i].Doc.Category == domain.DefaultCategory {
			mapped[i].Doc.Category = c
		}
	}
}

func (o *Orchestrator) export(ctx context.Context, r *run) {
	if o.sink == nil {
		return
	}
	r.mu.Lock()
	docs := r.committed
	r.mu.Unlock()
	if len(docs) == 0 {
		return
	}

	if err := o.sink.ExportTransactions(ctx, r.req.UserID, docs); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("transactions", len(docs)).Msg("Warehouse export failed")
	}
}

func (o *Orchestrator) archive(ctx context.Context, r *run, name string, payload any) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Archive(ctx, r.req.UserID, r.req.ItemID, r.req.JobID, name, payload); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("payload", name).Msg("Raw payload archive failed")
	}
}

// archivingBills archives every non-empty bill list it returns.
type archivingBills struct {
	source  BillSource
	archive func(ctx context.Context, name string, payload any)
}

func (a archivingBills) ListBills(ctx context.Context, accountID string) ([]pluggy.Bill, error) {
	bills, err := a.source.ListBills(ctx, accountID)
	if err == nil && len(bills) > 0 {
		a.archive(ctx, "bills-"+accountID, bills)
	}
	return bills, err
}
