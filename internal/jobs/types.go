// Package jobs persists queued synthesis jobs for the external worker.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/docvoice/internal/session"
)

type Status string

const (
	StatusQueued    Status = "Queued"
	StatusCompleted Status = "Completed"
)

var ErrUnknownFlow = errors.New("jobs: unknown flow")

// Record is one job row. VoiceID is set for standard TTS jobs,
// ReferenceAudioURL for voice-clone jobs.
type Record struct {
	ID                string       `json:"id"`
	Flow              session.Flow `json:"flow"`
	UserID            string       `json:"user_id"`
	DocumentURL       string       `json:"document_url"`
	VoiceID           string       `json:"voice_id,omitempty"`
	ReferenceAudioURL string       `json:"reference_audio_url,omitempty"`
	Status            Status       `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Patch is a partial update applied to a user's rows in one flow table.
// Rows still in StatusQueued belong to submitted jobs and are never patched.
type Patch struct {
	VoiceID string
}

type Store interface {
	InsertJob(ctx context.Context, rec Record) error
	UpdateJob(ctx context.Context, flow session.Flow, userID string, patch Patch) error
	Close() error
}

// Tables names the job table for each flow.
type Tables struct {
	StandardTTS string
	VoiceClone  string
}

func (t Tables) For(flow session.Flow) (string, error) {
	switch flow {
	case session.FlowStandardTTS:
		return t.StandardTTS, nil
	case session.FlowVoiceClone:
		return t.VoiceClone, nil
	default:
		return "", ErrUnknownFlow
	}
}
