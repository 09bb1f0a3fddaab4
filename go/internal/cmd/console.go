package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/donut/go/internal/chat"
	"github.com/mcdev12/donut/go/internal/coinflip"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/toast"
)

var errQuit = errors.New("quit")

// console renders every surface of the client as lines of text and reads
// commands from the terminal.
type console struct {
	mu  sync.Mutex
	out io.Writer

	lines    <-chan string
	confirms chan confirmRequest
	done     chan struct{}

	online       int
	balanceLabel string
}

func newConsole(out io.Writer, in io.Reader) *console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("stopped reading input")
		}
	}()
	return &console{
		out:      out,
		lines:    lines,
		confirms: make(chan confirmRequest),
		done:     make(chan struct{}),
	}
}

// confirmRequest is a question waiting for the next input line.
type confirmRequest struct {
	prompt string
	answer chan bool
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Run executes commands until ctx is done or the user quits. Closed input
// leaves the client running in the background.
//
// Run owns the input. A line answers the oldest open Confirm if there is one
// and is executed as a command otherwise. Commands run one at a time on a
// separate goroutine so that a command may itself ask for confirmation.
func (c *console) Run(ctx context.Context, caps capabilities) error {
	defer close(c.done)

	cmds := make(chan string)
	quit := make(chan struct{}, 1)
	defer close(cmds)
	go c.work(ctx, caps, cmds, quit)

	lines := c.lines
	var queue []string
	var waiting []confirmRequest
	for {
		var next chan<- string
		var head string
		if len(queue) > 0 {
			next, head = cmds, queue[0]
		}

		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return errQuit
		case next <- head:
			queue = queue[1:]
		case req := <-c.confirms:
			if lines == nil {
				req.answer <- false
				continue
			}
			waiting = append(waiting, req)
			if len(waiting) == 1 {
				c.prompt(req.prompt)
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				for _, req := range waiting {
					req.answer <- false
				}
				waiting = nil
				continue
			}
			if len(waiting) == 0 {
				queue = append(queue, line)
				continue
			}
			waiting[0].answer <- isYes(line)
			waiting = waiting[1:]
			if len(waiting) > 0 {
				c.prompt(waiting[0].prompt)
			}
		}
	}
}

func (c *console) work(ctx context.Context, caps capabilities, cmds <-chan string, quit chan<- struct{}) {
	for line := range cmds {
		reply, err := execute(ctx, caps, line)
		if errors.Is(err, errQuit) {
			select {
			case quit <- struct{}{}:
			default:
			}
			continue
		}
		if err != nil {
			c.printf("! %v", err)
			continue
		}
		if reply != "" {
			c.printf("%s", reply)
		}
	}
}

func (c *console) prompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s [y/N] ", text)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func formatMessage(m models.ChatMessage, canDelete bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", m.TimeLabel())
	if canDelete {
		fmt.Fprintf(&b, "#%d ", m.ID)
	}
	if badge := m.Role.Badge(); badge != "" {
		fmt.Fprintf(&b, "[%s] ", badge)
	}
	fmt.Fprintf(&b, "%s: %s", m.Username, m.Content)
	return b.String()
}

func (c *console) Replace(messages []models.ChatMessage, canDelete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "--- chat (%d messages) ---\n", len(messages))
	for _, m := range messages {
		fmt.Fprintln(c.out, formatMessage(m, canDelete))
	}
}

func (c *console) Append(message models.ChatMessage, canDelete bool) {
	c.printf("%s", formatMessage(message, canDelete))
}

func (c *console) Remove(messageID int64) bool {
	c.printf("- message #%d deleted", messageID)
	return true
}

func (c *console) ShowSystem(line chat.SystemLine) {
	for _, l := range strings.Split(line.Text, "\n") {
		c.printf("* %s", l)
	}
}

// RemoveSystem is a no-op: printed lines stay printed.
func (c *console) RemoveSystem(uuid.UUID) {}

func (c *console) AtBottom() bool { return true }

func (c *console) ScrollToBottom() {}

func (c *console) SetOnline(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count == c.online {
		return
	}
	c.online = count
	fmt.Fprintf(c.out, "(%d online)\n", count)
}

func (c *console) SetInputEnabled(bool) {}

func (c *console) ClearInput() {}

func (c *console) SetPanelOpen(open bool) {
	state := "closed"
	if open {
		state = "open"
	}
	c.printf("chat panel %s", state)
}

func (c *console) Render(value float64, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if label == c.balanceLabel {
		return
	}
	c.balanceLabel = label
	fmt.Fprintf(c.out, "balance: $%s\n", label)
}

func (c *console) Pulse() {}

func (c *console) Mount(entry toast.Entry) {
	c.printf("[%s] %s", entry.Kind, entry.Message)
}

func (c *console) Reveal(uuid.UUID) {}

func (c *console) Hide(uuid.UUID) {}

func (c *console) Unmount(uuid.UUID) {}

func (c *console) Notify(n coinflip.Notification) {
	c.printf("\a>> %s Pot: %s  %s", n.Message, n.Pot, n.Link)
}

func (c *console) OpenProfile(userID models.ID) {
	c.printf("profile of user %s", userID)
}

// Confirm asks on the terminal and waits for the answer. Questions from
// several callers are asked one after another, and a typed answer is never
// run as a command. It blocks until Run is serving input and returns false
// once input is closed or Run has stopped.
func (c *console) Confirm(prompt string) bool {
	req := confirmRequest{prompt: prompt, answer: make(chan bool, 1)}
	select {
	case c.confirms <- req:
	case <-c.done:
		return false
	}

	select {
	case ok := <-req.answer:
		return ok
	case <-c.done:
		return false
	}
}
