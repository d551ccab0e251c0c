// Package intake runs the conversational intake flows: it validates each
// inbound chat message against the user's current session state, advances the
// session, and triggers the upload and job-record writes at the end.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/docvoice/internal/catalog"
	"github.com/ent0n29/docvoice/internal/jobs"
	"github.com/ent0n29/docvoice/internal/observability"
	"github.com/ent0n29/docvoice/internal/policy"
	"github.com/ent0n29/docvoice/internal/session"
	"github.com/ent0n29/docvoice/internal/storage"
)

const defaultIOTimeout = 30 * time.Second

// PersistFailureHook runs after a job insert failed for an upload that
// already succeeded. The upload and the insert are not transactional.
type PersistFailureHook func(ctx context.Context, rec jobs.Record, obj storage.Object, err error)

type Engine struct {
	sessions  *session.Manager
	catalog   *catalog.Catalog
	transport Transport
	store     storage.Store
	jobs      jobs.Store
	metrics   *observability.Metrics
	logger    *slog.Logger

	ioTimeout         time.Duration
	recordVoiceChoice bool
	onPersistFailure  PersistFailureHook

	flows   map[session.Flow]*FlowDescriptor
	entries map[string]*FlowDescriptor
}

type Option func(*Engine)

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIOTimeout bounds every transport, storage and job-store call.
func WithIOTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ioTimeout = d
		}
	}
}

// WithRecordVoiceChoice toggles the best-effort job-row update issued when a
// standard TTS user picks a voice. Off by default. Stores never apply the
// update to rows that are still queued.
func WithRecordVoiceChoice(enabled bool) Option {
	return func(e *Engine) { e.recordVoiceChoice = enabled }
}

func WithPersistFailureHook(h PersistFailureHook) Option {
	return func(e *Engine) { e.onPersistFailure = h }
}

func NewEngine(sessions *session.Manager, cat *catalog.Catalog, transport Transport, store storage.Store, jobStore jobs.Store, opts ...Option) (*Engine, error) {
	if sessions == nil {
		return nil, errors.New("intake: session manager must not be nil")
	}
	if cat == nil {
		return nil, errors.New("intake: catalog must not be nil")
	}
	if transport == nil {
		return nil, errors.New("intake: transport must not be nil")
	}
	if store == nil {
		return nil, errors.New("intake: object store must not be nil")
	}
	if jobStore == nil {
		return nil, errors.New("intake: job store must not be nil")
	}
	e := &Engine{
		sessions:          sessions,
		catalog:           cat,
		transport:         transport,
		store:             store,
		jobs:              jobStore,
		logger:            slog.Default(),
		ioTimeout:         defaultIOTimeout,
		recordVoiceChoice: false,
		flows:             make(map[session.Flow]*FlowDescriptor),
		entries:           make(map[string]*FlowDescriptor),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, d := range []*FlowDescriptor{standardTTSFlow(), voiceCloneFlow()} {
		e.flows[d.Flow] = d
		e.entries[strings.ToLower(d.Command)] = d
	}
	return e, nil
}

// Flow returns the descriptor for a flow, or nil.
func (e *Engine) Flow(flow session.Flow) *FlowDescriptor {
	return e.flows[flow]
}

// Handle applies one inbound event. Messages for the same user are handled
// one at a time; different users proceed in parallel.
func (e *Engine) Handle(ctx context.Context, ev Event) Outcome {
	unlock := e.sessions.Lock(ev.UserID)
	defer unlock()

	if ev.Kind == KindCommand {
		if out, handled := e.handleCommand(ctx, ev); handled {
			return out
		}
	}

	s, err := e.sessions.Get(ev.UserID)
	if err != nil {
		e.send(ctx, ev.UserID, textUsage, nil)
		return Outcome{Code: ErrorInvalidInput, Reason: "no_session"}
	}
	return e.advance(ctx, s, ev)
}

// handleCommand handles entry, cancel and help commands. Any other command is
// left to the current step, which rejects it.
func (e *Engine) handleCommand(ctx context.Context, ev Event) (Outcome, bool) {
	name := strings.ToLower(strings.TrimSpace(ev.Command))
	if d, ok := e.entries[name]; ok {
		return e.start(ctx, ev.UserID, d), true
	}

	switch name {
	case commandCancel:
		ended, err := e.sessions.End(ev.UserID)
		if err != nil {
			e.send(ctx, ev.UserID, textNothingToCancel, nil)
			return Outcome{}, true
		}
		e.metrics.ObserveSessionEvent(string(ended.Flow), "cancelled")
		e.metrics.SetActiveSessions(e.sessions.ActiveCount())
		e.send(ctx, ev.UserID, textCancelled, nil)
		return Outcome{Flow: ended.Flow}, true
	case commandStart, commandHelp:
		e.send(ctx, ev.UserID, textUsage, nil)
		out := Outcome{}
		if s, err := e.sessions.Get(ev.UserID); err == nil {
			out.Flow, out.State = s.Flow, s.State
		}
		return out, true
	}

	if _, err := e.sessions.Get(ev.UserID); err != nil {
		e.send(ctx, ev.UserID, textUsage, nil)
		return Outcome{Code: ErrorInvalidInput, Reason: "unknown_command"}, true
	}
	return Outcome{}, false
}

// start creates a fresh session, discarding any in-flight one.
func (e *Engine) start(ctx context.Context, userID string, d *FlowDescriptor) Outcome {
	s, replaced := e.sessions.Create(userID, d.Flow, d.First())
	out := Outcome{Flow: d.Flow, State: s.State}
	if replaced {
		out.Code = ErrorSessionConflict
		out.Reason = "replaced_active_session"
		e.metrics.ObserveSessionEvent(string(d.Flow), "replaced")
		e.logger.Info("intake session replaced", "user_id", userID, "flow", d.Flow)
	}
	e.metrics.ObserveSessionEvent(string(d.Flow), "created")
	e.metrics.SetActiveSessions(e.sessions.ActiveCount())

	if d.Welcome != "" {
		e.send(ctx, userID, d.Welcome, nil)
	}
	text, choices := d.steps[s.State].prompt(e, s)
	e.send(ctx, userID, text, choices)
	return out
}

func (e *Engine) advance(ctx context.Context, s *session.Session, ev Event) Outcome {
	d, ok := e.flows[s.Flow]
	if !ok {
		e.dropBroken(s)
		return Outcome{Code: ErrorInvalidInput, Reason: "unknown_flow"}
	}
	st, ok := d.steps[s.State]
	if !ok {
		e.dropBroken(s)
		return Outcome{Flow: s.Flow, Code: ErrorInvalidInput, Reason: "unknown_state"}
	}

	ack, serr := st.apply(ctx, e, s, ev)
	if serr != nil {
		e.reject(ctx, s, st, ev, serr)
		return Outcome{Flow: s.Flow, State: s.State, Code: serr.Code, Reason: serr.Reason}
	}

	next := d.next(s.State)
	s.State = next
	if next.Terminal() {
		if _, err := e.sessions.End(s.UserID); err != nil {
			e.logger.Warn("intake session already gone at completion", "user_id", s.UserID, "flow", s.Flow)
		}
		e.metrics.ObserveSessionEvent(string(s.Flow), "completed")
		e.metrics.SetActiveSessions(e.sessions.ActiveCount())
		e.send(ctx, s.UserID, joinText(ack, d.Done), nil)
		return Outcome{Flow: s.Flow, State: next, Completed: true}
	}

	if err := e.sessions.Save(s); err != nil {
		e.logger.Warn("intake session could not be saved", "user_id", s.UserID, "flow", s.Flow, "err", err)
		return Outcome{Flow: s.Flow, Code: ErrorSessionConflict, Reason: "stale_session"}
	}
	text, choices := d.steps[next].prompt(e, s)
	e.send(ctx, s.UserID, joinText(ack, text), choices)
	return Outcome{Flow: s.Flow, State: next}
}

func (e *Engine) reject(ctx context.Context, s *session.Session, st step, ev Event, serr *Error) {
	e.metrics.ObserveRejectedInput(s.State.String(), string(serr.Code))

	switch serr.Code {
	case ErrorUpstreamUpload:
		e.logger.Warn("intake upload failed",
			"user_id", s.UserID, "flow", s.Flow, "state", s.State.String(), "reason", serr.Reason, "err", serr.Err)
		e.send(ctx, s.UserID, st.uploadFailed, nil)
	default:
		e.logger.Debug("intake input rejected",
			"user_id", s.UserID, "flow", s.Flow, "state", s.State.String(), "reason", serr.Reason, "input", policy.LogText(ev.Text))
		_, choices := st.prompt(e, s)
		e.send(ctx, s.UserID, st.invalid, choices)
	}
}

func (e *Engine) dropBroken(s *session.Session) {
	_, _ = e.sessions.End(s.UserID)
	e.metrics.SetActiveSessions(e.sessions.ActiveCount())
	e.logger.Error("intake session in unknown position dropped", "user_id", s.UserID, "flow", s.Flow, "state", s.State.String())
}

func (e *Engine) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.ioTimeout)
}

// send is fire-and-report: a failed prompt is logged and counted, never fatal.
func (e *Engine) send(ctx context.Context, userID, text string, choices []string) {
	cctx, cancel := e.ioContext(ctx)
	defer cancel()
	if err := e.transport.SendPrompt(cctx, userID, text, choices); err != nil {
		e.metrics.ObserveUpstreamFailure("transport", "send_prompt")
		e.logger.Warn("send prompt failed", "user_id", userID, "err", err)
	}
}

// transfer downloads an attachment from the chat platform and stores it.
func (e *Engine) transfer(ctx context.Context, att *Attachment, kind storage.Kind) (storage.Object, *Error) {
	fctx, cancel := e.ioContext(ctx)
	data, err := e.transport.FetchAttachment(fctx, att.FileRef)
	cancel()
	if err != nil {
		e.metrics.ObserveUpstreamFailure("transport", "fetch_attachment")
		return storage.Object{}, newError(ErrorUpstreamUpload, "fetch_failed", err)
	}

	uctx, cancel := e.ioContext(ctx)
	obj, err := e.store.Upload(uctx, data, att.FileName, kind)
	cancel()
	if err == nil && obj.URL == "" {
		err = storage.ErrEmptyURL
	}
	if err != nil {
		e.metrics.ObserveUpstreamFailure("storage", "upload")
		return storage.Object{}, newError(ErrorUpstreamUpload, "upload_failed", err)
	}
	return obj, nil
}

// persist writes the job row. A failure is logged and handed to the
// persist-failure hook; the user still sees the upload as accepted.
func (e *Engine) persist(ctx context.Context, s *session.Session, rec jobs.Record, obj storage.Object) {
	cctx, cancel := e.ioContext(ctx)
	err := e.jobs.InsertJob(cctx, rec)
	cancel()
	if err == nil {
		e.metrics.ObserveJobQueued(string(rec.Flow))
		e.logger.Info("job queued", "user_id", s.UserID, "flow", s.Flow, "document_url", rec.DocumentURL)
		return
	}

	perr := newError(ErrorUpstreamPersistence, "insert_failed", err)
	e.metrics.ObserveUpstreamFailure("jobs", "insert")
	e.logger.Error("job insert failed", "user_id", s.UserID, "flow", s.Flow, "document_url", rec.DocumentURL, "err", perr)
	if e.onPersistFailure != nil {
		hctx, cancel := e.ioContext(ctx)
		defer cancel()
		e.onPersistFailure(hctx, rec, obj, perr)
	}
}

func (e *Engine) recordVoice(ctx context.Context, s *session.Session) {
	cctx, cancel := e.ioContext(ctx)
	defer cancel()
	if err := e.jobs.UpdateJob(cctx, s.Flow, s.UserID, jobs.Patch{VoiceID: s.VoiceID}); err != nil {
		e.metrics.ObserveUpstreamFailure("jobs", "update")
		e.logger.Error("voice choice update failed", "user_id", s.UserID, "voice_id", s.VoiceID,
			"err", newError(ErrorUpstreamPersistence, "update_failed", err))
	}
}

// DeleteOrphanedUpload returns a hook that removes the stored object whose
// job row could not be written.
func DeleteOrphanedUpload(store storage.Store, logger *slog.Logger) PersistFailureHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, rec jobs.Record, obj storage.Object, _ error) {
		if obj.Key == "" {
			return
		}
		if err := store.Delete(ctx, obj.Key); err != nil {
			logger.Error("orphaned upload cleanup failed", "user_id", rec.UserID, "key", obj.Key, "err", err)
			return
		}
		logger.Info("orphaned upload removed", "user_id", rec.UserID, "key", obj.Key)
	}
}

func joinText(ack, text string) string {
	switch {
	case ack == "":
		return text
	case text == "":
		return ack
	default:
		return ack + " " + text
	}
}
