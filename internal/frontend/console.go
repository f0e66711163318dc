// Package frontend implements the interaction surfaces: console, voice loop,
// hotkey macros, and the ambient monitor.
package frontend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// ConsoleIO reads replies from stdin and prints prompts; it backs the text
// channel's clarification and confirmation rounds, and stands in for ASR and
// TTS when no audio stack is wired.
type ConsoleIO struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleIO creates a console channel over the given streams.
func NewConsoleIO(in io.Reader, out io.Writer) *ConsoleIO {
	return &ConsoleIO{in: bufio.NewReader(in), out: out}
}

// Clarify prints the question and reads one line.
func (c *ConsoleIO) Clarify(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", nerrors.FromContext("console.clarify", err)
	}
	color.New(color.FgYellow).Fprintf(c.out, "? %s\n> ", question)
	return c.readLine(ctx)
}

// Confirm prints the prompt and accepts y/yes.
func (c *ConsoleIO) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, nerrors.FromContext("console.confirm", err)
	}
	color.New(color.FgRed).Fprintf(c.out, "! %s [y/N] ", prompt)
	line, err := c.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// TranscribeUntilSilence reads one line; the console stands in for the
// microphone.
func (c *ConsoleIO) TranscribeUntilSilence(ctx context.Context, silence, max time.Duration) (string, error) {
	fmt.Fprint(c.out, "> ")
	return c.readLine(ctx)
}

// Speak prints the text; blocking has no meaning on a console.
func (c *ConsoleIO) Speak(ctx context.Context, text string, blocking bool) error {
	color.New(color.FgCyan).Fprintln(c.out, text)
	return nil
}

func (c *ConsoleIO) readLine(ctx context.Context) (string, error) {
	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- lineResult{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", nerrors.FromContext("console.read", ctx.Err())
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", nerrors.Unavailable("console.read", r.err)
		}
		return r.line, nil
	}
}
