package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/donut/go/internal/chat"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/money"
)

// capabilities is the part of app.Capabilities the terminal uses.
type capabilities interface {
	SendChat(ctx context.Context, text string) error
	DeleteChatMessage(ctx context.Context, messageID int64) error
	TogglePanel(ctx context.Context) (bool, error)
	RegisterPendingCoinflip(ctx context.Context, gameID models.ID) error
	Balance() (float64, error)
	DeductBalance(amount float64) error
	AddBalance(amount float64) error
	SetVisible(visible bool)
}

const help = `/hide  /show  /panel  /balance  /bet <amount>  /win <amount>
/pending <gameId>  /delete <messageId>  /quit
anything else is sent to the chat`

// execute runs one line of input and returns the text to print.
func execute(ctx context.Context, caps capabilities, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit":
		return "", errQuit
	case "/commands":
		return help, nil
	case "/hide":
		caps.SetVisible(false)
		return "background: polling paused", nil
	case "/show":
		caps.SetVisible(true)
		return "foreground: polling resumed", nil
	case "/panel":
		if _, err := caps.TogglePanel(ctx); err != nil {
			return "", err
		}
		return "", nil
	case "/balance":
		v, err := caps.Balance()
		if err != nil {
			return "", err
		}
		return money.FormatDollars(v), nil
	case "/bet", "/win":
		amount, err := money.Parse(arg)
		if err != nil {
			return "", fmt.Errorf("%s needs an amount such as 250 or 1.5k", fields[0])
		}
		apply := caps.DeductBalance
		if fields[0] == "/win" {
			apply = caps.AddBalance
		}
		return "", apply(amount)
	case "/pending":
		if arg == "" {
			return "", errors.New("/pending needs a game id")
		}
		if err := caps.RegisterPendingCoinflip(ctx, models.ID(arg)); err != nil {
			return "", err
		}
		return fmt.Sprintf("watching coinflip %s", arg), nil
	case "/delete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return "", errors.New("/delete needs a message id")
		}
		// server failures are already shown as toasts
		if err := caps.DeleteChatMessage(ctx, id); errors.Is(err, chat.ErrDeclined) {
			return "not deleted", nil
		}
		return "", nil
	}

	// the site answers its own slash commands with a system message
	if err := caps.SendChat(ctx, line); errors.Is(err, chat.ErrSendInFlight) {
		return "", err
	}
	return "", nil
}
