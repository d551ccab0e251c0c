package intake

import (
	"context"
	"slices"
	"strings"

	"github.com/ent0n29/docvoice/internal/jobs"
	"github.com/ent0n29/docvoice/internal/session"
	"github.com/ent0n29/docvoice/internal/storage"
)

const (
	commandStandardTTS = "TextToSpeech"
	commandVoiceClone  = "cloneVoice_tts"
	commandCancel      = "cancel"
	commandStart       = "start"
	commandHelp        = "help"
)

const (
	textUsage = "Send /" + commandStandardTTS + " to convert a Word document to speech, " +
		"or /" + commandVoiceClone + " to use a cloned voice. Send /" + commandCancel + " to stop at any time."
	textWelcomeTTS = "Welcome to the Text-to-Speech Service!\n" +
		"This service allows you to convert text in Word documents into speech.\n" +
		"Please follow the steps to get started."
	textCancelled       = "Cancelled. " + textUsage
	textNothingToCancel = "There is nothing to cancel. " + textUsage
)

// step is one state of a flow: how to prompt for it, how to validate and apply
// the user's reply, and what to say when the reply is rejected.
type step struct {
	prompt func(e *Engine, s *session.Session) (string, []string)
	// apply mutates s only when it returns a nil *Error. The returned string is
	// an acknowledgement prefixed to the next prompt.
	apply        func(ctx context.Context, e *Engine, s *session.Session, ev Event) (string, *Error)
	invalid      string
	uploadFailed string
}

// FlowDescriptor parametrizes the engine for one intake variant.
type FlowDescriptor struct {
	Flow    session.Flow
	Command string
	Welcome string
	Done    string
	// States is the ordered state sequence; the last entry is terminal.
	States []session.State
	steps  map[session.State]step
}

func (d *FlowDescriptor) First() session.State {
	return d.States[0]
}

func (d *FlowDescriptor) next(cur session.State) session.State {
	i := slices.Index(d.States, cur)
	if i < 0 || i+1 >= len(d.States) {
		return session.StateCompleted
	}
	return d.States[i+1]
}

// Reaches reports whether a session of this flow can ever be in state st.
func (d *FlowDescriptor) Reaches(st session.State) bool {
	return slices.Contains(d.States, st)
}

func standardTTSFlow() *FlowDescriptor {
	return &FlowDescriptor{
		Flow:    session.FlowStandardTTS,
		Command: commandStandardTTS,
		Welcome: textWelcomeTTS,
		Done:    "File received and uploaded!",
		States: []session.State{
			session.StateAwaitingGender,
			session.StateAwaitingLanguage,
			session.StateAwaitingVoice,
			session.StateAwaitingDocument,
			session.StateCompleted,
		},
		steps: map[session.State]step{
			session.StateAwaitingGender: {
				prompt:  promptGender,
				apply:   applyGender,
				invalid: "Invalid gender choice. Please choose Male or Female.",
			},
			session.StateAwaitingLanguage: {
				prompt:  promptLanguage,
				apply:   applyLanguage,
				invalid: "Invalid language choice. Please choose from English, French, or Arabic.",
			},
			session.StateAwaitingVoice: {
				prompt:  promptVoice,
				apply:   applyVoice,
				invalid: "Invalid voice choice. Please choose one of the voices offered.",
			},
			session.StateAwaitingDocument: documentStep(),
		},
	}
}

func voiceCloneFlow() *FlowDescriptor {
	return &FlowDescriptor{
		Flow:    session.FlowVoiceClone,
		Command: commandVoiceClone,
		Done:    "Word document received and uploaded!",
		States: []session.State{
			session.StateAwaitingReferenceAudio,
			session.StateAwaitingDocument,
			session.StateCompleted,
		},
		steps: map[session.State]step{
			session.StateAwaitingReferenceAudio: {
				prompt:       promptReferenceAudio,
				apply:        applyReferenceAudio,
				invalid:      "Please send a valid MP3 file or provide a valid MP3 URL.",
				uploadFailed: "Sorry, the MP3 file could not be uploaded. Please send it again.",
			},
			session.StateAwaitingDocument: documentStep(),
		},
	}
}

func documentStep() step {
	return step{
		prompt:       promptDocument,
		apply:        applyDocument,
		invalid:      "Please send a valid Word document.",
		uploadFailed: "Sorry, the document could not be uploaded. Please send it again.",
	}
}

func promptGender(e *Engine, _ *session.Session) (string, []string) {
	return "Please choose a gender:", e.catalog.GenderLabels()
}

func promptLanguage(e *Engine, _ *session.Session) (string, []string) {
	return "Please choose a language:", e.catalog.LanguageLabels()
}

func promptVoice(_ *Engine, s *session.Session) (string, []string) {
	return "Please choose a voice:", slices.Clone(s.OfferedVoices)
}

func promptReferenceAudio(_ *Engine, _ *session.Session) (string, []string) {
	return "Please attach an MP3 file or provide a URL to an MP3 file.", nil
}

func promptDocument(_ *Engine, _ *session.Session) (string, []string) {
	return "Now, please attach the Word document you want to convert to speech.", nil
}

func applyGender(_ context.Context, e *Engine, s *session.Session, ev Event) (string, *Error) {
	if ev.Kind != KindText {
		return "", newError(ErrorInvalidInput, "expected_text", nil)
	}
	gender, ok := e.catalog.MatchGender(ev.Text)
	if !ok {
		return "", newError(ErrorInvalidInput, "unknown_gender", nil)
	}
	s.Gender = gender
	return "", nil
}

func applyLanguage(_ context.Context, e *Engine, s *session.Session, ev Event) (string, *Error) {
	if ev.Kind != KindText {
		return "", newError(ErrorInvalidInput, "expected_text", nil)
	}
	language, ok := e.catalog.MatchLanguage(ev.Text)
	if !ok {
		return "", newError(ErrorInvalidInput, "unknown_language", nil)
	}
	voices := e.catalog.Voices(s.Gender, language)
	if len(voices) == 0 {
		return "", newError(ErrorInvalidInput, "no_voices_for_pair", nil)
	}
	s.Language = language
	s.OfferedVoices = voices
	return "", nil
}

func applyVoice(ctx context.Context, e *Engine, s *session.Session, ev Event) (string, *Error) {
	if ev.Kind != KindText {
		return "", newError(ErrorInvalidInput, "expected_text", nil)
	}
	text := strings.TrimSpace(ev.Text)
	i := slices.IndexFunc(s.OfferedVoices, func(v string) bool { return strings.EqualFold(v, text) })
	if i < 0 {
		return "", newError(ErrorInvalidInput, "voice_not_offered", nil)
	}
	s.VoiceID = s.OfferedVoices[i]
	if e.recordVoiceChoice {
		e.recordVoice(ctx, s)
	}
	return "Thank you!", nil
}

func applyReferenceAudio(ctx context.Context, e *Engine, s *session.Session, ev Event) (string, *Error) {
	switch {
	case ev.Kind == KindDocument && ev.Attachment != nil && isMP3(ev.Attachment.MIMEType):
		obj, err := e.transfer(ctx, ev.Attachment, storage.KindAudio)
		if err != nil {
			return "", err
		}
		s.ReferenceAudio = obj.URL
		return "MP3 file received!", nil
	case ev.Kind == KindText && isMP3Reference(ev.Text):
		s.ReferenceAudio = strings.TrimSpace(ev.Text)
		return "MP3 URL received!", nil
	case ev.Kind == KindDocument:
		return "", newError(ErrorUnsupportedAttachment, "not_mp3", nil)
	default:
		return "", newError(ErrorInvalidInput, "expected_mp3", nil)
	}
}

func applyDocument(ctx context.Context, e *Engine, s *session.Session, ev Event) (string, *Error) {
	if ev.Kind != KindDocument || ev.Attachment == nil {
		return "", newError(ErrorInvalidInput, "expected_document", nil)
	}
	if !isWordDocument(ev.Attachment.MIMEType) {
		return "", newError(ErrorUnsupportedAttachment, "not_word_document", nil)
	}
	obj, err := e.transfer(ctx, ev.Attachment, storage.KindDocument)
	if err != nil {
		return "", err
	}

	rec := jobs.Record{
		Flow:        s.Flow,
		UserID:      s.UserID,
		DocumentURL: obj.URL,
		Status:      jobs.StatusQueued,
	}
	switch s.Flow {
	case session.FlowStandardTTS:
		rec.VoiceID = s.VoiceID
	case session.FlowVoiceClone:
		rec.ReferenceAudioURL = s.ReferenceAudio
	}
	e.persist(ctx, s, rec, obj)
	return "", nil
}
