package session

import "time"

// Flow identifies which intake variant a session is walking through.
type Flow string

const (
	FlowStandardTTS Flow = "standard_tts"
	FlowVoiceClone  Flow = "voice_clone"
)

// State is a position in a flow's state machine.
type State int

const (
	StateAwaitingGender State = iota + 1
	StateAwaitingLanguage
	StateAwaitingVoice
	StateAwaitingReferenceAudio
	StateAwaitingDocument
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAwaitingGender:
		return "awaiting_gender"
	case StateAwaitingLanguage:
		return "awaiting_language"
	case StateAwaitingVoice:
		return "awaiting_voice"
	case StateAwaitingReferenceAudio:
		return "awaiting_reference_audio"
	case StateAwaitingDocument:
		return "awaiting_document"
	case StateCompleted:
		return "completed"
	default:
		return "none"
	}
}

// Terminal reports whether no further input is accepted in this state.
func (s State) Terminal() bool {
	return s == StateCompleted
}

// Session is the mutable per-user progress record through a flow.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Flow           Flow      `json:"flow"`
	State          State     `json:"state"`
	Gender         string    `json:"gender,omitempty"`
	Language       string    `json:"language,omitempty"`
	VoiceID        string    `json:"voice_id,omitempty"`
	OfferedVoices  []string  `json:"offered_voices,omitempty"`
	ReferenceAudio string    `json:"reference_audio,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
