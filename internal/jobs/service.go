// Package jobs owns the job store and implements the management operations:
// create, list, delete, edit, and immediate sends that bypass persistence.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"linebell/internal/compose"
	"linebell/internal/directory"
	"linebell/internal/store"
	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type Service struct {
	repo   *Repo
	dir    *directory.Directory
	sender transport.Sender
	log    logx.Logger
	now    func() time.Time

	sendTimeout time.Duration
}

func NewService(repo *Repo, dir *directory.Directory, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		repo:        repo,
		dir:         dir,
		sender:      sender,
		log:         log,
		now:         time.Now,
		sendTimeout: 10 * time.Second,
	}
}

// Repo exposes the store owner for the dispatcher.
func (s *Service) Repo() *Repo { return s.repo }

// CreateRequest is a job creation request. Recipients are group names; they
// are resolved to recipient ids here, at creation time. If TriggerAt is nil
// the message is sent immediately and never persisted.
type CreateRequest struct {
	Recipients []string
	Title      string
	Template   string
	Params     compose.Params
	Content    string // literal text for the custom/unknown template

	TriggerAt  *time.Time
	Recurrence store.Recurrence
	WeekDay    *int
}

// CreateResult reports the outcome. Job is nil for immediate sends.
type CreateResult struct {
	Job     *store.Job
	Dropped []string // recipient names with no directory entry
	Sent    int      // immediate sends only
	Failed  int      // immediate sends only
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	var res CreateResult

	recurrence := req.Recurrence
	if recurrence == "" {
		recurrence = store.RecurNone
	}
	if !recurrence.Valid() {
		return res, invalid("recurrence", "must be none, daily or weekly")
	}
	if recurrence == store.RecurWeekly {
		if req.WeekDay == nil {
			return res, invalid("week_day", "required for weekly recurrence")
		}
		if *req.WeekDay < 0 || *req.WeekDay > 6 {
			return res, invalid("week_day", "must be in [0,6]")
		}
	} else if req.WeekDay != nil {
		return res, invalid("week_day", "only valid for weekly recurrence")
	}
	if recurrence != store.RecurNone && req.TriggerAt == nil {
		return res, invalid("trigger_at", "required for recurring jobs")
	}
	if len(req.Recipients) == 0 {
		return res, invalid("recipients", "at least one recipient name is required")
	}

	// Resolve names now; unresolved names are dropped with a warning, never
	// stored.
	ids := make([]string, 0, len(req.Recipients))
	for _, name := range req.Recipients {
		id, ok := s.dir.Resolve(name)
		if !ok {
			s.log.Warn("recipient name not in directory; dropped", logx.String("name", name))
			res.Dropped = append(res.Dropped, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return res, invalid("recipients", "no recipient name could be resolved")
	}

	text := compose.Render(req.Template, req.Params, req.Content)
	if text == "" {
		return res, invalid("content", "rendered message text is empty")
	}

	// No trigger time: deliver right away, bypassing the store entirely.
	if req.TriggerAt == nil {
		for _, id := range ids {
			cctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
			err := s.sender.Push(cctx, id, req.Title, text)
			cancel()
			if err != nil {
				s.log.Warn("immediate send failed", logx.String("recipient", id), logx.Err(err))
				res.Failed++
				continue
			}
			res.Sent++
		}
		return res, nil
	}

	j := store.Job{
		ID:          uuid.NewString(),
		Recipients:  ids,
		Title:       req.Title,
		MessageText: text,
		TriggerAt:   *req.TriggerAt,
		Recurrence:  recurrence,
		WeekDay:     req.WeekDay,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Append(ctx, j); err != nil {
		return res, err
	}
	s.log.Info("job created",
		logx.String("job", j.ID),
		logx.String("recurrence", string(j.Recurrence)),
		logx.Time("trigger_at", j.TriggerAt),
		logx.Int("recipients", len(j.Recipients)))
	res.Job = &j
	return res, nil
}

// List returns the full current store contents.
func (s *Service) List(ctx context.Context) ([]store.Job, error) {
	return s.repo.All(ctx)
}

// Delete removes a job by id. A missing id reports ErrNotFound; once deleted
// no subsequent tick can dispatch it.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.Update(ctx, func(jobs []store.Job) ([]store.Job, error) {
		for i := range jobs {
			if jobs[i].ID == id {
				return append(jobs[:i], jobs[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	if err == nil {
		s.log.Info("job deleted", logx.String("job", id))
	}
	return err
}

// EditRequest is a partial update; nil fields are left unchanged.
type EditRequest struct {
	Title     *string
	Content   *string // replaces the rendered message text verbatim
	TriggerAt *time.Time
}

// Edit applies a partial update and resets dispatch state, so the job becomes
// eligible again under its (possibly new) schedule — including re-arming a
// delivered one-time job.
func (s *Service) Edit(ctx context.Context, id string, req EditRequest) (store.Job, error) {
	var out store.Job
	err := s.repo.Update(ctx, func(jobs []store.Job) ([]store.Job, error) {
		for i := range jobs {
			if jobs[i].ID != id {
				continue
			}
			if req.Title != nil {
				jobs[i].Title = *req.Title
			}
			if req.Content != nil {
				if *req.Content == "" {
					return nil, invalid("content", "message text cannot be empty")
				}
				jobs[i].MessageText = *req.Content
			}
			if req.TriggerAt != nil {
				jobs[i].TriggerAt = *req.TriggerAt
			}
			jobs[i].Delivered = false
			jobs[i].LastFired = ""
			out = jobs[i].Clone()
			return jobs, nil
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return store.Job{}, err
	}
	s.log.Info("job edited", logx.String("job", id))
	return out, nil
}
