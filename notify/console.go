package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ConsoleBackend prints alerts to a writer instead of sending email.
// Used by the watcher's console-alerts mode for local verification.
type ConsoleBackend struct {
	out io.Writer
}

// NewConsoleBackend prints to stdout.
func NewConsoleBackend() *ConsoleBackend {
	return &ConsoleBackend{out: os.Stdout}
}

// NewConsoleBackendTo prints to the given writer.
func NewConsoleBackendTo(out io.Writer) *ConsoleBackend {
	return &ConsoleBackend{out: out}
}

func (b *ConsoleBackend) SendAlert(_ context.Context, to []string, subject, body string) error {
	header := color.New(color.FgYellow, color.Bold)
	if _, err := header.Fprintf(b.out, "ALERT %s\n", subject); err != nil {
		return err
	}
	fmt.Fprintf(b.out, "To: %s\n\n%s\n", strings.Join(to, ", "), body)
	return nil
}
