package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/models"
)

// API is the slice of the site client the chat session talks to.
type API interface {
	ChatMessages(ctx context.Context) (*site_client.MessagesResponse, error)
	SendChat(ctx context.Context, text string) (*site_client.SendResponse, error)
	DeleteChat(ctx context.Context, messageID int64) error
	OnlineCount(ctx context.Context) (int, error)
}

// SystemLine is a transient reply to a chat command. It is shown in the feed
// area but is never part of the message log.
type SystemLine struct {
	ID   uuid.UUID
	Text string
}

func (l SystemLine) Multiline() bool {
	return strings.Contains(l.Text, "\n")
}

// Feed renders the chat panel. The session calls it from its own goroutines
// and never concurrently; implementations must not call back into the session.
type Feed interface {
	// Replace swaps the whole message list in one step.
	Replace(messages []models.ChatMessage, canDelete bool)
	Append(message models.ChatMessage, canDelete bool)
	Remove(messageID int64) bool
	ShowSystem(line SystemLine)
	RemoveSystem(id uuid.UUID)

	AtBottom() bool
	ScrollToBottom()

	SetOnline(count int)
	SetInputEnabled(enabled bool)
	ClearInput()
	SetPanelOpen(open bool)
}

type Confirmer interface {
	Confirm(prompt string) bool
}

type Notifier interface {
	Show(message string, isError bool)
}
