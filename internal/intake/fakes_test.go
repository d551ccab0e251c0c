package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/docvoice/internal/catalog"
	"github.com/ent0n29/docvoice/internal/jobs"
	"github.com/ent0n29/docvoice/internal/session"
	"github.com/ent0n29/docvoice/internal/storage"
)

type prompt struct {
	UserID  string
	Text    string
	Choices []string
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []prompt
	files    map[string][]byte
	fetchErr error
	block    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: make(map[string][]byte)}
}

func (f *fakeTransport) SendPrompt(_ context.Context, userID, text string, choices []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, prompt{UserID: userID, Text: text, Choices: choices})
	return nil
}

func (f *fakeTransport) FetchAttachment(ctx context.Context, fileRef string) ([]byte, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.files[fileRef]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (f *fakeTransport) last(t *testing.T, userID string) prompt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].UserID == userID {
			return f.sent[i]
		}
	}
	t.Fatalf("no prompt sent to %s", userID)
	return prompt{}
}

type failingStore struct {
	storage.Store
	err     error
	emptyOK bool
}

func (f *failingStore) Upload(ctx context.Context, data []byte, name string, kind storage.Kind) (storage.Object, error) {
	if f.emptyOK {
		return storage.Object{Key: "k"}, nil
	}
	return storage.Object{}, f.err
}

type recordingJobs struct {
	*jobs.InMemoryStore
	mu        sync.Mutex
	insertErr error
	updateErr error
	inserts   int
	updates   []jobs.Patch
}

func newRecordingJobs() *recordingJobs {
	return &recordingJobs{InMemoryStore: jobs.NewInMemoryStore()}
}

func (r *recordingJobs) InsertJob(ctx context.Context, rec jobs.Record) error {
	r.mu.Lock()
	r.inserts++
	err := r.insertErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.InMemoryStore.InsertJob(ctx, rec)
}

func (r *recordingJobs) UpdateJob(ctx context.Context, flow session.Flow, userID string, patch jobs.Patch) error {
	r.mu.Lock()
	r.updates = append(r.updates, patch)
	err := r.updateErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.InMemoryStore.UpdateJob(ctx, flow, userID, patch)
}

type fixture struct {
	engine    *Engine
	sessions  *session.Manager
	transport *fakeTransport
	store     *storage.InMemoryStore
	jobs      *recordingJobs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sessions:  session.NewManager(time.Minute),
		transport: newFakeTransport(),
		store:     storage.NewInMemoryStore("Queued/"),
		jobs:      newRecordingJobs(),
	}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := NewEngine(f.sessions, catalog.Default(), f.transport, f.store, f.jobs, opts...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) command(user, name string) Outcome {
	return f.engine.Handle(context.Background(), Event{UserID: user, Kind: KindCommand, Command: name})
}

func (f *fixture) text(user, text string) Outcome {
	return f.engine.Handle(context.Background(), Event{UserID: user, Kind: KindText, Text: text})
}

func (f *fixture) document(user, ref, name, mimeType string, data []byte) Outcome {
	f.transport.mu.Lock()
	f.transport.files[ref] = data
	f.transport.mu.Unlock()
	return f.engine.Handle(context.Background(), Event{
		UserID: user,
		Kind:   KindDocument,
		Attachment: &Attachment{
			FileRef:  ref,
			FileName: name,
			MIMEType: mimeType,
			Size:     int64(len(data)),
		},
	})
}

func (f *fixture) session(t *testing.T, user string) *session.Session {
	t.Helper()
	s, err := f.sessions.Get(user)
	require.NoError(t, err)
	return s
}
