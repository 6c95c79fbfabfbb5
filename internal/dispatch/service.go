// Package dispatch runs the periodic due-check loop: scan the job store,
// deliver everything that is due, and record the transition in the same
// atomic store write.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"linebell/internal/eventbus"
	"linebell/internal/jobs"
	"linebell/internal/store"
	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type Service struct {
	cfg    Config
	repo   *jobs.Repo
	sender transport.Sender
	bus    eventbus.Bus
	log    logx.Logger

	now     func() time.Time
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	cr     *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	// tickMu makes ticks single-flight. A tick that cannot take it is
	// skipped outright, never queued behind the running one.
	tickMu sync.Mutex

	mu   sync.Mutex
	last *Report
}

func New(cfg Config, repo *jobs.Repo, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:     cfg,
		repo:    repo,
		sender:  sender,
		bus:     bus,
		log:     log,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sem:     semaphore.NewWeighted(int64(cfg.MaxInflight)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start arms the periodic trigger and runs one tick right away, so jobs that
// came due while the process was down fire without waiting a full period.
func (s *Service) Start() {
	s.cr = cron.New()
	_, _ = s.cr.AddFunc("@every "+s.cfg.Tick.String(), s.runTick)
	s.cr.Start()
	go s.runTick()
	s.log.Info("dispatcher started", logx.Duration("tick", s.cfg.Tick))
}

// Stop halts the trigger and waits for an in-flight tick to finish, so its
// store write is never cut off mid-commit. The context is canceled only once
// the lock is held: an in-flight tick (cron-scheduled or the bootstrap one)
// keeps its sends and commit intact, and any tick still pending after Stop
// sees the canceled context and does nothing.
func (s *Service) Stop() {
	if s.cr != nil {
		<-s.cr.Stop().Done()
	}
	s.tickMu.Lock()
	s.cancel()
	s.tickMu.Unlock()
	s.log.Info("dispatcher stopped")
}

func (s *Service) runTick() {
	if !s.tickMu.TryLock() {
		s.log.Warn("tick skipped, previous tick still running")
		s.publish("dispatch.tick", Report{At: s.now(), Skipped: true})
		return
	}
	defer s.tickMu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.Tick(s.ctx, s.now())
}

// Last returns the most recent tick report, if any tick has completed.
func (s *Service) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Tick performs one due-check pass at the given instant. Delivery happens
// inside the store owner's update, so management mutations wait until the
// whole pass, sends included, has committed.
//
// A job transitions to fired when its sends were attempted, whatever the
// per-recipient outcomes; failures are reported, not retried.
func (s *Service) Tick(ctx context.Context, now time.Time) Report {
	started := time.Now()
	rep := Report{At: now}

	err := s.repo.Update(ctx, func(all []store.Job) ([]store.Job, error) {
		rep.Scanned = len(all)
		changed := false
		for i := range all {
			fire, key := due(all[i], now)
			if !fire {
				continue
			}
			rep.Due++

			sent, failures := s.deliver(ctx, all[i])
			rep.Sent += sent
			rep.Failures = append(rep.Failures, failures...)

			if all[i].OneTime() {
				all[i].Delivered = true
			} else {
				all[i].LastFired = key
			}
			changed = true

			s.log.Info("job fired",
				logx.String("job", all[i].ID),
				logx.String("recurrence", string(all[i].Recurrence)),
				logx.Int("sent", sent),
				logx.Int("failed", len(failures)))
			s.publish("dispatch.job_fired", map[string]any{
				"job_id": all[i].ID,
				"sent":   sent,
				"failed": len(failures),
			})
		}
		if !changed {
			return nil, jobs.ErrNoChange
		}
		return all, nil
	})
	if err != nil {
		// The sends above may have gone out, but the transition is not
		// durable; the next tick re-evaluates from the last committed state.
		rep.PersistError = err.Error()
		s.log.Error("tick commit failed", logx.Err(err))
		s.publish("dispatch.persist_failed", err.Error())
	}

	rep.Took = time.Since(started)
	if rep.Due > 0 || rep.PersistError != "" {
		s.log.Info("tick done",
			logx.Int("scanned", rep.Scanned),
			logx.Int("due", rep.Due),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", len(rep.Failures)),
			logx.Duration("took", rep.Took))
	}
	s.publish("dispatch.tick", rep)

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep
}

// deliver pushes one job's message to all its recipients with bounded
// concurrency. One bad recipient never blocks the rest.
func (s *Service) deliver(ctx context.Context, j store.Job) (sent int, failures []SendFailure) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rcpt := range j.Recipients {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failures = append(failures, SendFailure{JobID: j.ID, Recipient: rcpt, Error: err.Error()})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(rcpt string) {
			defer wg.Done()
			defer s.sem.Release(1)

			err := s.pushOne(ctx, rcpt, j.Title, j.MessageText)
			mu.Lock()
			if err != nil {
				failures = append(failures, SendFailure{JobID: j.ID, Recipient: rcpt, Error: err.Error()})
			} else {
				sent++
			}
			mu.Unlock()
			if err != nil {
				s.log.Warn("send failed",
					logx.String("job", j.ID),
					logx.String("recipient", rcpt),
					logx.Err(err))
				s.publish("dispatch.send_failed", map[string]any{
					"job_id":    j.ID,
					"recipient": rcpt,
					"error":     err.Error(),
				})
			}
		}(rcpt)
	}
	wg.Wait()
	return sent, failures
}

func (s *Service) pushOne(ctx context.Context, rcpt, title, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.sender.Push(cctx, rcpt, title, text)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
