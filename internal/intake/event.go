package intake

import (
	"context"
	"slices"
	"strings"

	"github.com/ent0n29/docvoice/internal/session"
)

type Kind int

const (
	KindText Kind = iota + 1
	KindCommand
	KindDocument
)

// Attachment describes a file sent through the chat platform. FileRef is the
// platform's handle used to download it.
type Attachment struct {
	FileRef  string
	FileName string
	MIMEType string
	Size     int64
}

// Event is one inbound chat message, already normalized by the transport.
type Event struct {
	UserID     string
	Kind       Kind
	Text       string
	Command    string
	Attachment *Attachment
}

// Outcome reports what a single Handle call did. State is the session state
// after the event; it is zero when the user has no session.
type Outcome struct {
	Flow      session.Flow
	State     session.State
	Code      ErrorCode
	Reason    string
	Completed bool
}

// Transport is the chat platform as seen by the engine. Choices, when
// non-empty, are offered as one-tap reply options in order.
type Transport interface {
	SendPrompt(ctx context.Context, userID, text string, choices []string) error
	FetchAttachment(ctx context.Context, fileRef string) ([]byte, error)
}

const (
	mimeWordLegacy = "application/msword"
	mimeWordOOXML  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeMP3        = "audio/mpeg"
)

var documentMIMETypes = []string{mimeWordLegacy, mimeWordOOXML}

func isWordDocument(mimeType string) bool {
	return slices.Contains(documentMIMETypes, strings.ToLower(strings.TrimSpace(mimeType)))
}

func isMP3(mimeType string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), mimeMP3)
}

func isMP3Reference(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) > len(".mp3") && strings.HasSuffix(strings.ToLower(text), ".mp3")
}
