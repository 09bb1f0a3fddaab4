package site_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/donut/go/internal/models"
)

type MessagesResponse struct {
	Success   bool                 `json:"success"`
	Messages  []models.ChatMessage `json:"messages"`
	CanDelete bool                 `json:"canDelete"`
}

type SendRequest struct {
	Message string `json:"message"`
}

// SendResponse is the outcome of a send. Exactly one of Message (a chat line
// stored by the server) or SystemMessage (the reply to a chat command) is set
// on success.
type SendResponse struct {
	Success       bool                `json:"success"`
	Message       *models.ChatMessage `json:"message,omitempty"`
	SystemMessage string              `json:"systemMessage,omitempty"`
}

type OnlineResponse struct {
	Success bool `json:"success"`
	Online  int  `json:"online"`
}

// ChatMessages fetches the recent-message snapshot.
func (c *SiteClient) ChatMessages(ctx context.Context) (*MessagesResponse, error) {
	body, err := c.Get(ctx, ChatMessagesEndpoint)

	var response MessagesResponse
	if err := decode(body, err, &response); err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	if !response.Success || response.Messages == nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", ErrUnexpectedResponse)
	}

	return &response, nil
}

func (c *SiteClient) SendChat(ctx context.Context, text string) (*SendResponse, error) {
	body, err := c.PostJSON(ctx, ChatSendEndpoint, SendRequest{Message: text})

	var response SendResponse
	if err := decode(body, err, &response); err != nil {
		return nil, fmt.Errorf("failed to send chat message: %w", err)
	}

	return &response, nil
}

func (c *SiteClient) DeleteChat(ctx context.Context, messageID int64) error {
	body, err := c.PostJSON(ctx, fmt.Sprintf(ChatDeleteEndpoint, messageID), nil)

	var response envelope
	if err := decode(body, err, &response); err != nil {
		return fmt.Errorf("failed to delete chat message %d: %w", messageID, err)
	}
	if !response.Success {
		return fmt.Errorf("failed to delete chat message %d: %w", messageID, ErrUnexpectedResponse)
	}

	return nil
}

func (c *SiteClient) OnlineCount(ctx context.Context) (int, error) {
	body, err := c.Get(ctx, ChatOnlineEndpoint)

	var response OnlineResponse
	if err := decode(body, err, &response); err != nil {
		return 0, fmt.Errorf("failed to get online count: %w", err)
	}
	if !response.Success {
		return 0, fmt.Errorf("failed to get online count: %w", ErrUnexpectedResponse)
	}

	return response.Online, nil
}
