package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"taskmill/internal/audit"
	"taskmill/internal/consumer"
	"taskmill/internal/consumer/action"
	"taskmill/internal/consumer/chat"
	"taskmill/internal/consumer/email"
	"taskmill/internal/domain"
	"taskmill/internal/notify"
	"taskmill/internal/scheduler"
	"taskmill/internal/telemetry"
)

type Server struct {
	r        *chi.Mux
	engine   *scheduler.Engine
	notifier *notify.Service
	audits   audit.Store
}

func NewServer(engine *scheduler.Engine, notifier *notify.Service, audits audit.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, engine: engine, notifier: notifier, audits: audits}

	r.Get("/health", s.health)
	r.Handle("/metrics", telemetry.Handler())

	r.Post("/api/notifications/email", s.scheduleEmail)
	r.Post("/api/notifications/chat", s.scheduleChat)
	r.Post("/api/actions", s.scheduleAction)

	r.Get("/api/scheduler/tasks", s.listTasks)
	r.Get("/api/scheduler/groups", s.listGroups)
	r.Delete("/api/scheduler/tasks", s.deleteAll)
	r.Post("/api/scheduler/pause", s.pauseScheduler)
	r.Post("/api/scheduler/resume", s.resumeScheduler)
	r.Get("/api/scheduler/audit", s.auditAll)

	r.Route("/api/scheduler/tasks/{group}/{name}", func(r chi.Router) {
		r.Post("/pause", s.pauseTask)
		r.Post("/resume", s.resumeTask)
		r.Post("/resend", s.resendTask)
		r.Delete("/", s.deleteTask)
		r.Get("/audit", s.auditByTask)
		r.Get("/audit/latest", s.auditLatest)
		r.Get("/audit/count", s.auditCount)
	})

	return r
}

// scheduleReq is the wire shape of a schedule. At most one of at, interval
// and cron may be set; none means immediate.
type scheduleReq struct {
	At       *time.Time `json:"at,omitempty"`
	Interval *struct {
		Days    int `json:"days"`
		Hours   int `json:"hours"`
		Minutes int `json:"minutes"`
	} `json:"interval,omitempty"`
	Cron string `json:"cron,omitempty"`
}

func (sr *scheduleReq) toSchedule() (domain.Schedule, error) {
	set := 0
	if sr.At != nil {
		set++
	}
	if sr.Interval != nil {
		set++
	}
	if sr.Cron != "" {
		set++
	}
	if set > 1 {
		return domain.Schedule{}, errors.New("at, interval and cron are mutually exclusive")
	}
	switch {
	case sr.At != nil:
		return domain.At(*sr.At), nil
	case sr.Interval != nil:
		return domain.Every(sr.Interval.Days, sr.Interval.Hours, sr.Interval.Minutes)
	case sr.Cron != "":
		return domain.Cron(sr.Cron)
	default:
		return domain.Immediate(), nil
	}
}

type notificationReq struct {
	ID          string               `json:"id"`
	Schedule    *scheduleReq         `json:"schedule,omitempty"`
	Description string               `json:"description"`
	Recipients  []consumer.Recipient `json:"recipients"`
	Template    string               `json:"template"`
	Fields      map[string]string    `json:"fields"`
	Attachments []string             `json:"attachments"`
	Subject     string               `json:"subject"` // email only
	CC          []string             `json:"cc"`      // email only
	Channel     string               `json:"channel"` // chat only
}

func (s *Server) scheduleEmail(w http.ResponseWriter, r *http.Request) {
	s.scheduleNotification(w, r, email.Type)
}

func (s *Server) scheduleChat(w http.ResponseWriter, r *http.Request) {
	s.scheduleNotification(w, r, chat.Type)
}

func (s *Server) scheduleNotification(w http.ResponseWriter, r *http.Request, consumerType string) {
	var req notificationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sched := domain.Immediate()
	if req.Schedule != nil {
		var err error
		if sched, err = req.Schedule.toSchedule(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	id := uuid.Nil
	if req.ID != "" {
		var err error
		if id, err = uuid.Parse(req.ID); err != nil {
			http.Error(w, "id must be a UUID", http.StatusBadRequest)
			return
		}
	}

	extra := map[string]any{}
	switch consumerType {
	case email.Type:
		if req.Subject != "" {
			extra[email.KeySubject] = req.Subject
		}
		if len(req.CC) > 0 {
			extra[email.KeyCC] = req.CC
		}
	case chat.Type:
		if req.Channel != "" {
			extra[chat.KeyChannel] = req.Channel
		}
	}

	results, err := s.notifier.Schedule(r.Context(), notify.Request{
		ID:           id,
		ConsumerType: consumerType,
		Schedule:     sched,
		Description:  req.Description,
		Recipients:   req.Recipients,
		Template:     req.Template,
		Fields:       req.Fields,
		Attachments:  req.Attachments,
		Extra:        extra,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if notify.FailureCount(results) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"results": results})
}

type actionReq struct {
	Name     string         `json:"name"`
	Group    string         `json:"group"`
	Schedule *scheduleReq   `json:"schedule,omitempty"`
	Action   string         `json:"action"`
	Params   map[string]any `json:"params"`
}

func (s *Server) scheduleAction(w http.ResponseWriter, r *http.Request) {
	var req actionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}

	sched := domain.Immediate()
	if req.Schedule != nil {
		var err error
		if sched, err = req.Schedule.toSchedule(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	name := req.Name
	if name == "" {
		name = "action-" + uuid.NewString()
	}
	group := req.Group
	if group == "" {
		group = "actions"
	}

	properties := map[string]any{
		consumer.KeyTaskID: uuid.NewString(),
		action.KeyAction:   req.Action,
	}
	for k, v := range req.Params {
		properties[k] = v
	}

	key, err := s.engine.Schedule(r.Context(), scheduler.Request{
		Key:          domain.TaskKey{Name: name, Group: group},
		ConsumerType: action.Type,
		Schedule:     sched,
		Properties:   properties,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListTasks(r.URL.Query().Get("group")))
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListGroups())
}

func (s *Server) pauseTask(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Pause(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) resumeTask(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Resume(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) resendTask(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resend(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Delete(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) deleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.DeleteAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) pauseScheduler(w http.ResponseWriter, r *http.Request) {
	s.engine.PauseAll()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) resumeScheduler(w http.ResponseWriter, r *http.Request) {
	s.engine.ResumeAll()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) auditAll(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audits.FindAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) auditByTask(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audits.Find(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) auditLatest(w http.ResponseWriter, r *http.Request) {
	entry, err := s.audits.MostRecent(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		http.Error(w, "no audit entries", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) auditCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.audits.Count(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"started":     s.engine.IsStarted(),
		"paused":      s.engine.IsPaused(),
		"total_tasks": s.engine.TotalTasks(),
	})
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSchedule),
		errors.Is(err, domain.ErrEmptyRecipients),
		errors.Is(err, domain.ErrMissingTemplate):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateTask),
		errors.Is(err, domain.ErrTaskRunning):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTaskNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
