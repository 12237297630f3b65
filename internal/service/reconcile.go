package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/epgsync/internal/logging"
	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/passlock"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/store"
)

var (
	// ErrCatalogUnavailable aborts a pass before any write when the EPG
	// catalog cannot be read or is empty.
	ErrCatalogUnavailable = errors.New("epg catalog unavailable")
	// ErrPassRunning is returned when another pass holds the pass lock.
	ErrPassRunning = errors.New("a reconciliation pass is already running")
)

const (
	ModePatterns = "patterns"
	ModeAutoScan = "auto-scan"
)

// RunRequest describes one reconciliation pass.
type RunRequest struct {
	Options          reconcile.Options
	DryRun           bool
	IncludeDecisions bool
	// RunID is generated when empty.
	RunID string
}

// Mode names the kind of pass for reports and logs.
func (r RunRequest) Mode() string {
	if r.Options.AutoScan {
		return ModeAutoScan
	}
	return ModePatterns
}

// RuleIssue is a mapping that was skipped during a pass.
type RuleIssue struct {
	MappingID int64  `json:"mapping_id"`
	Pattern   string `json:"pattern"`
	Message   string `json:"message"`
}

// Report summarizes a finished pass.
type Report struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	reconcile.Stats
	RuleErrors []RuleIssue `json:"rule_errors,omitempty"`
	// Failed lists channels whose write failed.
	Failed    []string             `json:"failed,omitempty"`
	Decisions []reconcile.Decision `json:"decisions,omitempty"`
}

// Reconciler runs reconciliation passes against a store.
type Reconciler struct {
	store         store.Store
	lock          passlock.Locker
	logger        *zap.Logger
	updateTimeout time.Duration
	concurrency   int
	now           func() time.Time
}

// ReconcilerOptions tunes how decisions are written.
type ReconcilerOptions struct {
	UpdateTimeout time.Duration
	Concurrency   int
}

func NewReconciler(s store.Store, lock passlock.Locker, logger *zap.Logger, opts ReconcilerOptions) *Reconciler {
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 10 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reconciler{
		store:         s,
		lock:          lock,
		logger:        logging.Component(logger, "reconcile"),
		updateTimeout: opts.UpdateTimeout,
		concurrency:   opts.Concurrency,
		now:           time.Now,
	}
}

// Running reports whether a pass currently holds the pass lock, in this
// process or another one.
func (r *Reconciler) Running(ctx context.Context) bool {
	return r.lock.Held(ctx)
}

// Run executes one pass: it takes the pass lock, snapshots channels, catalog
// and mappings, evaluates the policy and, unless DryRun, writes every changed
// channel. A failed write is counted and the pass continues.
func (r *Reconciler) Run(ctx context.Context, req RunRequest) (*Report, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	release, err := r.lock.TryAcquire(ctx)
	if errors.Is(err, passlock.ErrLocked) {
		return nil, ErrPassRunning
	}
	if err != nil {
		return nil, fmt.Errorf("pass lock: %w", err)
	}
	defer release()

	rep := &Report{RunID: req.RunID, Mode: req.Mode(), DryRun: req.DryRun, StartedAt: r.now().UTC()}
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	}
	log := r.logger.With(zap.String("run_id", rep.RunID), zap.String("mode", rep.Mode))

	snap, err := r.snapshot(ctx)
	if err != nil {
		log.Warn("pass aborted", zap.Error(err))
		return nil, err
	}
	res, err := reconcile.Evaluate(snap, req.Options)
	if err != nil {
		return nil, err
	}
	for _, re := range res.RuleErrors {
		log.Warn("mapping skipped", zap.Int64("mapping_id", re.MappingID), zap.String("pattern", re.Pattern), zap.Error(re.Err))
		rep.RuleErrors = append(rep.RuleErrors, RuleIssue{MappingID: re.MappingID, Pattern: re.Pattern, Message: re.Err.Error()})
	}

	rep.Stats = res.Stats
	var locked map[string]reconcile.Decision
	if !req.DryRun {
		rep.Failed, locked = r.apply(ctx, res.Changes(), &rep.Stats, log)
	}
	if req.IncludeDecisions {
		rep.Decisions = res.Decisions
		for i, d := range rep.Decisions {
			if ld, ok := locked[d.ChannelID]; ok {
				rep.Decisions[i] = ld
			}
		}
	}
	rep.FinishedAt = r.now().UTC()

	log.Info("pass finished",
		zap.Bool("dry_run", rep.DryRun),
		zap.Int("total", rep.Total),
		zap.Int("updated", rep.Updated),
		zap.Int("matched", rep.Matched),
		zap.Int("cleaned", rep.Cleaned),
		zap.Int("locked", rep.Locked),
		zap.Int("excluded", rep.Excluded),
		zap.Int("skipped", rep.Skipped),
		zap.Int("errors", rep.Errors),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)),
	)
	return rep, nil
}

// snapshot loads the three collections concurrently.
func (r *Reconciler) snapshot(ctx context.Context) (reconcile.Snapshot, error) {
	var snap reconcile.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chs, err := r.store.AllChannels(gctx)
		if err != nil {
			return fmt.Errorf("load channels: %w", err)
		}
		snap.Channels = chs
		return nil
	})
	g.Go(func() error {
		cat, err := r.store.ListCatalog(gctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}
		if len(cat) == 0 {
			return fmt.Errorf("%w: no entries from enabled sources", ErrCatalogUnavailable)
		}
		snap.Catalog = cat
		return nil
	})
	g.Go(func() error {
		ms, err := r.store.ListMappings(gctx)
		if err != nil {
			return fmt.Errorf("load mappings: %w", err)
		}
		snap.Mappings = ms
		return nil
	})
	if err := g.Wait(); err != nil {
		return reconcile.Snapshot{}, err
	}
	return snap, nil
}

// apply writes changes with bounded concurrency. Each write has its own
// timeout; failures revert that decision's counters. Channels protected
// since the snapshot are not written and are returned as locked decisions.
func (r *Reconciler) apply(ctx context.Context, changes []reconcile.Decision, stats *reconcile.Stats, log *zap.Logger) ([]string, map[string]reconcile.Decision) {
	var (
		mu     sync.Mutex
		failed []string
		locked = make(map[string]reconcile.Decision)
		g      errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, d := range changes {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(ctx, r.updateTimeout)
			defer cancel()
			err := r.store.ApplyChannelEPG(uctx, d.ChannelID, d.Fields)
			if err == nil {
				log.Debug("channel updated", zap.String("channel_id", d.ChannelID),
					zap.String("action", string(d.Action)), zap.String("reason", string(d.Reason)),
					zap.String("tvg_id", models.StrVal(d.Fields.TvgID)))
				return nil
			}
			if errors.Is(err, store.ErrProtected) {
				var current models.EPGFields
				if ch, gerr := r.store.GetChannel(uctx, d.ChannelID); gerr == nil {
					current = ch.EPG()
				}
				log.Info("channel protected during pass", zap.String("channel_id", d.ChannelID))
				mu.Lock()
				stats.Lock(d)
				locked[d.ChannelID] = d.Locked(current)
				mu.Unlock()
				return nil
			}
			log.Warn("channel update failed", zap.String("channel_id", d.ChannelID), zap.Error(err))
			mu.Lock()
			stats.Revert(d)
			failed = append(failed, d.ChannelID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(failed)
	return failed, locked
}
