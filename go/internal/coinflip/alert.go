package coinflip

import (
	"fmt"
	"time"

	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/money"
)

const (
	AlertSound    = "audio/hat.ogg"
	AlertVolume   = 0.5
	AlertAutoHide = 10 * time.Second
)

// Notification tells the creator of a game that someone joined it.
type Notification struct {
	GameID   models.ID
	Opponent string
	Message  string
	// Pot is the formatted total at stake, e.g. "$1.5k".
	Pot      string
	Link     string
	Sound    string
	Volume   float64
	AutoHide time.Duration
}

func NewNotification(game models.Coinflip, link string) Notification {
	opponent := "Someone"
	if game.Ice != nil && game.Ice.Username != "" {
		opponent = game.Ice.Username
	}
	return Notification{
		GameID:   game.ID,
		Opponent: opponent,
		Message:  fmt.Sprintf("%s joined your coinflip!", opponent),
		Pot:      money.FormatDollars(game.Pot()),
		Link:     link,
		Sound:    AlertSound,
		Volume:   AlertVolume,
		AutoHide: AlertAutoHide,
	}
}

// Alert presents a notification to the user.
type Alert interface {
	Notify(n Notification)
}

type toaster interface {
	Show(message string, isError bool)
}

// ToastAlert shows notifications as plain toasts, for surfaces without a
// dedicated alert widget.
type ToastAlert struct {
	Toasts toaster
}

func (a ToastAlert) Notify(n Notification) {
	a.Toasts.Show(fmt.Sprintf("%s Pot: %s", n.Message, n.Pot), false)
}
