package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s, replaced := m.Create("u1", FlowStandardTTS, StateAwaitingGender)
	require.False(t, replaced)
	require.NotEmpty(t, s.ID)

	got, err := m.Get("u1")
	require.NoError(t, err)
	require.Equal(t, FlowStandardTTS, got.Flow)
	require.Equal(t, StateAwaitingGender, got.State)
	require.Equal(t, 1, m.ActiveCount())

	ended, err := m.End("u1")
	require.NoError(t, err)
	require.Equal(t, s.ID, ended.ID)

	_, err = m.Get("u1")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, m.ActiveCount())
}

func TestManagerCreateReplacesPriorSession(t *testing.T) {
	m := NewManager(time.Minute)
	first, _ := m.Create("u1", FlowStandardTTS, StateAwaitingGender)
	first.Gender = "female"
	first.State = StateAwaitingLanguage
	require.NoError(t, m.Save(first))

	second, replaced := m.Create("u1", FlowVoiceClone, StateAwaitingReferenceAudio)
	require.True(t, replaced)
	require.NotEqual(t, first.ID, second.ID)

	got, err := m.Get("u1")
	require.NoError(t, err)
	require.Empty(t, got.Gender)
	require.Equal(t, StateAwaitingReferenceAudio, got.State)

	require.ErrorIs(t, m.Save(first), ErrStale)
}

func TestManagerSaveRejectsEndedSession(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Create("u1", FlowVoiceClone, StateAwaitingReferenceAudio)
	_, err := m.End("u1")
	require.NoError(t, err)

	s.State = StateAwaitingDocument
	require.ErrorIs(t, m.Save(s), ErrStale)
	_, err = m.Get("u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerCopiesDoNotAlias(t *testing.T) {
	m := NewManager(time.Minute)
	s, _ := m.Create("u1", FlowStandardTTS, StateAwaitingVoice)
	s.OfferedVoices = []string{"en-US-AriaNeural"}
	require.NoError(t, m.Save(s))

	s.OfferedVoices[0] = "mutated"
	got, err := m.Get("u1")
	require.NoError(t, err)
	require.Equal(t, []string{"en-US-AriaNeural"}, got.OfferedVoices)
}

func TestManagerLockSerializesSameUser(t *testing.T) {
	m := NewManager(time.Minute)
	m.Create("u1", FlowStandardTTS, StateAwaitingGender)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("u1")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.locks)
}

func TestManagerLockDoesNotBlockOtherUsers(t *testing.T) {
	m := NewManager(time.Minute)
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for user b blocked behind user a")
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	var (
		mu      sync.Mutex
		expired []string
	)
	m.SetExpireHook(func(s *Session) {
		mu.Lock()
		expired = append(expired, s.UserID)
		mu.Unlock()
	})
	m.Create("u1", FlowStandardTTS, StateAwaitingGender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := m.Get("u1")
		return err == ErrNotFound
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"u1"}, expired)
}

func TestManagerJanitorSkipsLockedUser(t *testing.T) {
	m := NewManager(time.Millisecond)
	base := time.Now().UTC()
	m.now = func() time.Time { return base }
	m.Create("u1", FlowStandardTTS, StateAwaitingGender)

	unlock := m.Lock("u1")
	m.now = func() time.Time { return base.Add(time.Hour) }
	m.expireInactive()

	_, err := m.Get("u1")
	require.NoError(t, err)

	unlock()
	m.expireInactive()
	_, err = m.Get("u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "awaiting_voice", StateAwaitingVoice.String())
	require.Equal(t, "none", State(0).String())
	require.True(t, StateCompleted.Terminal())
	require.False(t, StateAwaitingDocument.Terminal())
}
