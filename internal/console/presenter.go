// Package console renders the mini app in a terminal for local runs.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Presenter prints every state change as one line. It remembers the last rendered values so
// Status can reprint the whole screen.
type Presenter struct {
	out io.Writer
	log *logrus.Entry

	mu             sync.Mutex
	userID         string
	address        string
	network        string
	actionLabel    string
	actionVisible  bool
	actionEnabled  bool
	connectEnabled bool
	loading        bool
	message        string
}

func NewPresenter(out io.Writer, logger *logrus.Logger) *Presenter {
	return &Presenter{out: out, log: logger.WithField("component", "console")}
}

func (p *Presenter) ShowStatus(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = msg
	p.printf("  %s\n", msg)
}

func (p *Presenter) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = msg
	p.printf("! %s\n", msg)
}

func (p *Presenter) ClearMessages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = ""
}

func (p *Presenter) SetLoading(loading bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading == loading {
		return
	}
	p.loading = loading
	if loading {
		p.printf("  ...\n")
	}
}

func (p *Presenter) SetActionEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actionEnabled != enabled {
		p.log.Debugf("action control enabled=%t", enabled)
	}
	p.actionEnabled = enabled
}

func (p *Presenter) SetConnectEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectEnabled = enabled
}

func (p *Presenter) ShowAuth(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = userID
}

func (p *Presenter) ShowWallet(address, network string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.address == address && p.network == network {
		return
	}
	p.address, p.network = address, network
	if address == "" {
		p.printf("  wallet: -\n")
		return
	}
	p.printf("  wallet: %s (%s)\n", address, network)
}

func (p *Presenter) ShowAction(label string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actionLabel, p.actionVisible = label, visible
}

// Status writes a summary of everything currently shown.
func (p *Presenter) Status() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	user := p.userID
	if user == "" {
		user = "-"
	}
	fmt.Fprintf(&sb, "  user:    %s\n", user)
	if p.address == "" {
		sb.WriteString("  wallet:  -\n")
	} else {
		fmt.Fprintf(&sb, "  wallet:  %s (%s)\n", p.address, p.network)
	}
	if p.actionVisible {
		fmt.Fprintf(&sb, "  action:  %s [%s]\n", p.actionLabel, enabledLabel(p.actionEnabled))
	} else {
		sb.WriteString("  action:  -\n")
	}
	fmt.Fprintf(&sb, "  connect: [%s]\n", enabledLabel(p.connectEnabled))
	if p.message != "" {
		fmt.Fprintf(&sb, "  last:    %s\n", p.message)
	}
	p.printf("%s", sb.String())
}

// ActionEnabled reports the last state of the action control.
func (p *Presenter) ActionEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actionEnabled
}

func (p *Presenter) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(p.out, format, args...); err != nil {
		p.log.Warnf("write to console: %v", err)
	}
}

func enabledLabel(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// QRDisplay saves the pairing QR code to path and prints the URI for wallets that accept a
// pasted link.
func QRDisplay(out io.Writer, path string) func(uri string, png []byte) error {
	return func(uri string, png []byte) error {
		if path != "" {
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create qr dir: %w", err)
				}
			}
			if err := os.WriteFile(path, png, 0o644); err != nil {
				return fmt.Errorf("write qr code: %w", err)
			}
			fmt.Fprintf(out, "  scan %s with your wallet, or paste:\n", path)
		}
		fmt.Fprintf(out, "  %s\n", uri)
		return nil
	}
}
