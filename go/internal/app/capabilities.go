package app

import (
	"context"
	"errors"

	"github.com/mcdev12/donut/go/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("app: no signed-in user")
	ErrNoProfileSurface = errors.New("app: profiles cannot be opened on this surface")
)

// Capabilities is everything outside code (a renderer, the control API, the
// terminal) may ask the running client to do.
type Capabilities struct {
	app *App
}

func (c *Capabilities) ShowNotification(message string, isError bool) {
	c.app.toasts.Show(message, isError)
}

// RegisterPendingCoinflip records a game the user just created so that a
// join alert fires later, whichever client is running at the time.
func (c *Capabilities) RegisterPendingCoinflip(ctx context.Context, gameID models.ID) error {
	return c.app.ledger.Register(ctx, gameID)
}

// MarkCoinflipNotified is used by surfaces that show the result themselves.
func (c *Capabilities) MarkCoinflipNotified(ctx context.Context, gameID models.ID) (bool, error) {
	return c.app.ledger.MarkNotified(ctx, gameID)
}

func (c *Capabilities) DeleteChatMessage(ctx context.Context, messageID int64) error {
	return c.app.chat.Delete(ctx, messageID)
}

func (c *Capabilities) SendChat(ctx context.Context, text string) error {
	return c.app.chat.Send(ctx, text)
}

func (c *Capabilities) TogglePanel(ctx context.Context) (bool, error) {
	return c.app.chat.TogglePanel(ctx)
}

func (c *Capabilities) OpenProfile(userID models.ID) error {
	if c.app.profiles == nil {
		return ErrNoProfileSurface
	}
	c.app.profiles.OpenProfile(userID)
	return nil
}

func (c *Capabilities) Balance() (float64, error) {
	if c.app.balance == nil {
		return 0, ErrNotAuthenticated
	}
	return c.app.balance.Balance(), nil
}

func (c *Capabilities) SetBalance(value float64) error {
	if c.app.balance == nil {
		return ErrNotAuthenticated
	}
	return c.app.balance.Set(value)
}

func (c *Capabilities) DeductBalance(amount float64) error {
	if c.app.balance == nil {
		return ErrNotAuthenticated
	}
	return c.app.balance.Deduct(amount)
}

func (c *Capabilities) AddBalance(amount float64) error {
	if c.app.balance == nil {
		return ErrNotAuthenticated
	}
	return c.app.balance.Add(amount)
}

// SetVisible moves the client between foreground and background. Going to
// the background stops every loop; coming back restarts them with an
// immediate refresh.
func (c *Capabilities) SetVisible(visible bool) {
	c.app.tracker.SetVisible(visible)
}

func (c *Capabilities) Visible() bool {
	return c.app.tracker.Visible()
}
