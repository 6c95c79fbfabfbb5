package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"linebell/internal/compose"
	"linebell/internal/directory"
	"linebell/internal/dispatch"
	"linebell/internal/jobs"
	"linebell/internal/runtime/supervisor"
	"linebell/internal/store"
	logx "linebell/pkg/logx"
)

type createJobRequest struct {
	Recipients []string       `json:"recipients"`
	Title      string         `json:"title"`
	Template   string         `json:"template,omitempty"`
	Params     templateParams `json:"params"`
	Content    string         `json:"content,omitempty"`

	TriggerAt  *time.Time `json:"trigger_at,omitempty"`
	Recurrence string     `json:"recurrence,omitempty"`
	WeekDay    *int       `json:"week_day,omitempty"`
}

type templateParams struct {
	Note     string  `json:"note,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
}

type createJobResponse struct {
	Job     *store.Job `json:"job,omitempty"`
	Dropped []string   `json:"dropped,omitempty"`
	Sent    int        `json:"sent,omitempty"`
	Failed  int        `json:"failed,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json: " + err.Error()})
		return
	}

	res, err := s.jobs.Create(r.Context(), jobs.CreateRequest{
		Recipients: req.Recipients,
		Title:      req.Title,
		Template:   req.Template,
		Params: compose.Params{
			Note:     req.Params.Note,
			Currency: req.Params.Currency,
			Amount:   req.Params.Amount,
		},
		Content:    req.Content,
		TriggerAt:  req.TriggerAt,
		Recurrence: store.Recurrence(req.Recurrence),
		WeekDay:    req.WeekDay,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}

	code := http.StatusOK // immediate send, nothing stored
	if res.Job != nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, createJobResponse{
		Job:     res.Job,
		Dropped: res.Dropped,
		Sent:    res.Sent,
		Failed:  res.Failed,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	all, err := s.jobs.List(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if all == nil {
		all = []store.Job{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editJobRequest struct {
	Title     *string    `json:"title,omitempty"`
	Content   *string    `json:"content,omitempty"`
	TriggerAt *time.Time `json:"trigger_at,omitempty"`
}

func (s *Server) handleEditJob(w http.ResponseWriter, r *http.Request) {
	var req editJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json: " + err.Error()})
		return
	}
	j, err := s.jobs.Edit(r.Context(), r.PathValue("id"), jobs.EditRequest{
		Title:     req.Title,
		Content:   req.Content,
		TriggerAt: req.TriggerAt,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type registerRecipientRequest struct {
	Name        string `json:"name"`
	RecipientID string `json:"recipient_id"`
}

func (s *Server) handleRegisterRecipient(w http.ResponseWriter, r *http.Request) {
	var req registerRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json: " + err.Error()})
		return
	}
	if err := s.dir.Register(req.Name, req.RecipientID); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, directory.Entry{Name: req.Name, RecipientID: req.RecipientID})
}

func (s *Server) handleListRecipients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.List())
}

type statusResponse struct {
	Time       time.Time           `json:"time"`
	LastTick   *dispatch.Report    `json:"last_tick,omitempty"`
	Goroutines supervisor.Counters `json:"goroutines"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Time: time.Now()}
	if s.disp != nil {
		if rep, ok := s.disp.Last(); ok {
			resp.LastTick = &rep
		}
	}
	if s.sup != nil {
		resp.Goroutines = s.sup.Counters()
	}
	s.log.Debug("status requested", logx.Bool("has_tick", resp.LastTick != nil))
	writeJSON(w, http.StatusOK, resp)
}
