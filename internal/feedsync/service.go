package feedsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"feedbridge/internal/eventbus"
	"feedbridge/internal/post"
	"feedbridge/internal/storage"
	logx "feedbridge/pkg/logx"
)

// Fetcher produces one batch, newest-first.
type Fetcher interface {
	FetchBatch(ctx context.Context) ([]post.RawItem, error)
}

// StateStore is the durable home of the sync state.
type StateStore interface {
	Load(ctx context.Context) (post.SyncState, error)
	Save(ctx context.Context, st post.SyncState) error
}

type auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Tunables are the knobs that may change on config reload.
type Tunables struct {
	MaxContentLen int
	Retention     int
	KeepPending   bool
	DeliveryDelay time.Duration
	// CycleTimeout bounds one cycle regardless of who started it. Zero means none.
	CycleTimeout time.Duration
}

func (t Tunables) withDefaults() Tunables {
	if t.MaxContentLen <= 0 {
		t.MaxContentLen = DefaultMaxContentLen
	}
	if t.Retention <= 0 {
		t.Retention = post.DefaultRetention
	}
	if t.DeliveryDelay < 0 {
		t.DeliveryDelay = 0
	}
	if t.CycleTimeout < 0 {
		t.CycleTimeout = 0
	}
	return t
}

type Options struct {
	Source  Fetcher
	Store   StateStore
	Deliver DeliverFunc

	Tunables Tunables
	Log      logx.Logger
	Bus      eventbus.Bus
	Metrics  *Metrics

	// Now and Sleep are overridable in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	CycleID   string        `json:"cycleId"`
	Success   bool          `json:"success"`
	IsNew     bool          `json:"isNew"`
	New       int           `json:"new"`
	Sent      int           `json:"sent"`
	Attempted int           `json:"attempted"`
	Pending   int           `json:"pending"`
	Message   string        `json:"message"`
	StartedAt time.Time     `json:"startedAt"`
	Took      time.Duration `json:"took"`
}

// Service runs sync cycles one at a time and serves state snapshots.
type Service struct {
	src     Fetcher
	store   StateStore
	deliver DeliverFunc
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	tmu sync.RWMutex
	tun Tunables

	base    context.Context
	close   context.CancelFunc
	group   singleflight.Group
	running atomic.Bool

	mu     sync.RWMutex
	loaded bool
	state  post.SyncState
	last   *CycleResult
}

func New(opts Options) (*Service, error) {
	if opts.Source == nil {
		return nil, errors.New("feedsync: source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("feedsync: store is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		base:    base,
		close:   cancel,
		src:     opts.Source,
		store:   opts.Store,
		deliver: opts.Deliver,
		log:     opts.Log.With(logx.String("comp", "feedsync")),
		bus:     opts.Bus,
		metrics: opts.Metrics,
		now:     opts.Now,
		sleep:   opts.Sleep,
		tun:     opts.Tunables.withDefaults(),
	}, nil
}

func (s *Service) SetTunables(t Tunables) {
	s.tmu.Lock()
	s.tun = t.withDefaults()
	s.tmu.Unlock()
}

func (s *Service) Tunables() Tunables {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	return s.tun
}

// Load reads persisted state into memory. Run calls it lazily.
func (s *Service) Load(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	s.mu.Lock()
	s.state = st.Clone()
	s.loaded = true
	s.mu.Unlock()
	s.metrics.state(st.PendingCount(), st.LastCheckAt)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() post.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Service) Running() bool { return s.running.Load() }

// Close cancels the cycle in flight, if any, and makes later cycles fail
// fast. The current item's persist still completes.
func (s *Service) Close() {
	s.close()
}

// Run starts a cycle, or joins the one in flight and returns its result.
// The cycle runs on the service's own context bounded by CycleTimeout; ctx
// only limits how long this caller waits.
func (s *Service) Run(ctx context.Context) (CycleResult, error) {
	ch := s.group.DoChan("cycle", func() (any, error) {
		cctx, cancel := s.cycleContext()
		defer cancel()
		return s.cycle(cctx)
	})
	select {
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	case r := <-ch:
		res, _ := r.Val.(CycleResult)
		return res, r.Err
	}
}

// TryRun is Run that refuses with ErrBusy instead of joining.
func (s *Service) TryRun(ctx context.Context) (CycleResult, error) {
	if s.running.Load() {
		return CycleResult{}, ErrBusy
	}
	return s.Run(ctx)
}

func (s *Service) cycleContext() (context.Context, context.CancelFunc) {
	if t := s.Tunables().CycleTimeout; t > 0 {
		return context.WithTimeout(s.base, t)
	}
	return context.WithCancel(s.base)
}

func (s *Service) cycle(ctx context.Context) (res CycleResult, err error) {
	s.running.Store(true)
	defer s.running.Store(false)

	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if !loaded {
		if err := s.Load(ctx); err != nil {
			return res, err
		}
	}

	started := s.now()
	res = CycleResult{CycleID: uuid.NewString(), StartedAt: started}
	log := s.log.With(logx.String("cycle", res.CycleID))
	tun := s.Tunables()
	eventbus.Publish(s.bus, eventbus.CycleStarted, res.CycleID)
	log.Debug("sync cycle started")

	defer func() {
		res.Took = s.now().Sub(started)
		s.finish(ctx, log, res, err)
	}()

	st := s.Snapshot()
	st.LastCheckAt = started

	batch, ferr := s.src.FetchBatch(ctx)
	if ferr != nil || len(batch) == 0 {
		if ferr != nil {
			log.Warn("fetch failed", logx.Err(fmt.Errorf("%w: %w", ErrFetch, ferr)))
		} else {
			log.Info("no posts found")
		}
		if err := s.save(ctx, st); err != nil {
			return res, fmt.Errorf("%w: %w", ErrPersist, err)
		}
		res.Pending = st.PendingCount()
		res.Message = "No posts found"
		if ferr != nil {
			res.Message = "No posts found: " + ferr.Error()
		}
		if ferr != nil && ctx.Err() != nil {
			res.Message = "Sync cycle aborted"
			return res, fmt.Errorf("%w: %w", ErrFetch, ferr)
		}
		return res, nil
	}

	fresh, st := Reconciler{MaxLen: tun.MaxContentLen, Now: s.now}.Sync(batch, st)
	res.New = len(fresh)
	res.IsNew = len(fresh) > 0
	s.metrics.observed(len(fresh))
	for _, it := range fresh {
		eventbus.Publish(s.bus, eventbus.ItemQueued, it.ID)
	}
	if len(fresh) > 0 {
		log.Info("new posts detected", logx.Int("count", len(fresh)))
	}

	d := Driver{
		Persist: s.save,
		Delay:   tun.DeliveryDelay,
		Sleep:   s.sleep,
		Log:     log,
		Bus:     s.bus,
		Metrics: s.metrics,
		Observe: func(it post.Item, derr error) {
			e := storage.AuditEntry{Cycle: res.CycleID, Event: storage.AuditDelivered, ItemID: it.ID}
			if derr != nil {
				e.Event, e.Detail = storage.AuditFailed, derr.Error()
			}
			s.audit(ctx, e)
		},
	}
	dres, derr := d.Drain(ctx, &st, s.deliver)
	res.Sent, res.Attempted = dres.Sent, dres.Attempted

	kept, evicted := st.Trim(tun.Retention, tun.KeepPending)
	for _, it := range evicted {
		if it.Delivered {
			continue
		}
		log.Warn("retention evicted an undelivered item", logx.String("item", it.ID))
		s.metrics.evictedPending(1)
		eventbus.Publish(s.bus, eventbus.ItemEvicted, it.ID)
		s.audit(ctx, storage.AuditEntry{Cycle: res.CycleID, Event: storage.AuditEvicted, ItemID: it.ID})
	}
	st = kept

	if serr := s.save(ctx, st); serr != nil {
		serr = fmt.Errorf("%w: %w", ErrPersist, serr)
		derr = errors.Join(derr, serr)
	}
	res.Pending = st.PendingCount()
	res.Success = res.Sent > 0
	switch {
	case errors.Is(derr, ErrNoDeliverer):
		res.Message = "No deliverer configured"
	case res.Attempted == 0:
		res.Message = "No new posts"
	default:
		res.Message = fmt.Sprintf("Processed %d posts, sent %d successfully.", res.Attempted, res.Sent)
	}
	return res, derr
}

// save persists st and publishes it as the readable snapshot.
func (s *Service) save(ctx context.Context, st post.SyncState) error {
	if err := s.store.Save(context.WithoutCancel(ctx), st); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st.Clone()
	s.mu.Unlock()
	s.metrics.state(st.PendingCount(), st.LastCheckAt)
	return nil
}

func (s *Service) audit(ctx context.Context, e storage.AuditEntry) {
	a, ok := s.store.(auditor)
	if !ok {
		return
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := a.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		s.log.Debug("audit append failed", logx.Err(err))
	}
}

func (s *Service) finish(ctx context.Context, log logx.Logger, res CycleResult, err error) {
	result := "idle"
	switch {
	case err != nil:
		result = "error"
	case res.Sent > 0:
		result = "sent"
	case res.Attempted > 0:
		result = "failed"
	}
	s.metrics.cycle(result, res.Took)

	s.mu.Lock()
	r := res
	s.last = &r
	s.mu.Unlock()

	fields := []logx.Field{
		logx.Int("new", res.New),
		logx.Int("sent", res.Sent),
		logx.Int("attempted", res.Attempted),
		logx.Int("pending", res.Pending),
		logx.Duration("took", res.Took),
	}
	if err != nil {
		log.Error("sync cycle failed", append(fields, logx.Err(err))...)
	} else {
		log.Info("sync cycle finished", fields...)
	}
	detail := res.Message
	if err != nil {
		detail = err.Error()
	}
	s.audit(ctx, storage.AuditEntry{Cycle: res.CycleID, Event: storage.AuditCycle, Detail: detail})
	eventbus.Publish(s.bus, eventbus.CycleFinished, res)
}
