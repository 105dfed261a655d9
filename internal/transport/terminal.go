package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"talkbot/internal/conversation"
	"talkbot/internal/dispatch"
)

var (
	managerLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	promptLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	summaryLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
	statusLabel  = color.New(color.FgHiBlack).SprintFunc()
)

// Terminal is a single human at a console.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
	err   error
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, lines: make(chan string)}
}

func (t *Terminal) start() {
	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
		t.err = scanner.Err()
		if t.err == nil {
			t.err = io.EOF
		}
		close(t.lines)
	}()
}

// readLine returns the next non-blank input line.
func (t *Terminal) readLine(ctx context.Context, prompt string) (string, error) {
	t.once.Do(t.start)

	for {
		fmt.Fprint(t.out, promptLabel(prompt)+" ")
		select {
		case line, ok := <-t.lines:
			if !ok {
				return "", t.err
			}
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return "", ctx.Err()
		}
	}
}

func (t *Terminal) Deliver(ctx context.Context, msg dispatch.RoutedMessage) error {
	_, err := fmt.Fprintf(t.out, "\n%s %s\n\n", managerLabel("Manager>"), msg.Message)
	return err
}

func (t *Terminal) Await(ctx context.Context) (string, error) {
	return t.readLine(ctx, "You>")
}

func (t *Terminal) DeliverSummary(ctx context.Context, report string) error {
	_, err := fmt.Fprintf(t.out, "\n%s\n%s\n", summaryLabel("=== Summary ==="), report)
	return err
}

// Run holds one conversation. An empty purpose is read from the input first.
func (t *Terminal) Run(ctx context.Context, runner Runner, purpose string) (conversation.Result, error) {
	if strings.TrimSpace(purpose) == "" {
		var err error
		if purpose, err = t.readLine(ctx, "Purpose>"); err != nil {
			return conversation.Result{}, err
		}
	}

	fmt.Fprintln(t.out, statusLabel("Working on it. The manager will ask you when it needs something."))
	res, err := runner.Run(ctx, t, purpose)
	if err != nil {
		return res, err
	}
	fmt.Fprintln(t.out, statusLabel(fmt.Sprintf("Conversation closed after %d turns (%s).", res.State.TurnCount, res.Reason)))
	return res, nil
}
