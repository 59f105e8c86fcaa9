package telegram

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type HapticKind string

const (
	HapticSuccess HapticKind = "success"
	HapticError   HapticKind = "error"
	HapticWarning HapticKind = "warning"
)

// ThemeParams mirrors the subset of host colors the app applies.
type ThemeParams struct {
	BgColor     string `json:"bg_color,omitempty" yaml:"bgColor"`
	TextColor   string `json:"text_color,omitempty" yaml:"textColor"`
	HintColor   string `json:"hint_color,omitempty" yaml:"hintColor"`
	ButtonColor string `json:"button_color,omitempty" yaml:"buttonColor"`
}

// Host is the chat client bridge.
type Host interface {
	InitData() string
	StartParam() string
	LanguageCode() string
	ThemeParams() ThemeParams
	NotifyHaptic(kind HapticKind)
	Close()
}

// ConsoleHost stands in for the chat client when the app runs in a terminal. Haptics are logged
// and Close invokes the supplied callback once.
type ConsoleHost struct {
	data    InitData
	theme   ThemeParams
	onClose func()
	log     *logrus.Entry

	closeOnce sync.Once
}

// NewConsoleHost parses raw leniently: a blob that fails to parse still authenticates through
// the backend, it just carries no start_param.
func NewConsoleHost(raw string, theme ThemeParams, onClose func(), logger *logrus.Logger) *ConsoleHost {
	data, err := ParseInitData(raw)
	entry := logger.WithField("component", "host")
	if err != nil && raw != "" {
		entry.Warnf("init data not parseable: %v", err)
	}
	data.Raw = raw
	return &ConsoleHost{data: data, theme: theme, onClose: onClose, log: entry}
}

func (h *ConsoleHost) InitData() string         { return h.data.Raw }
func (h *ConsoleHost) StartParam() string       { return h.data.StartParam }
func (h *ConsoleHost) LanguageCode() string     { return h.data.LanguageCode() }
func (h *ConsoleHost) ThemeParams() ThemeParams { return h.theme }

// Parsed exposes the decoded blob.
func (h *ConsoleHost) Parsed() InitData {
	return h.data
}

func (h *ConsoleHost) NotifyHaptic(kind HapticKind) {
	h.log.Debugf("haptic: %s", kind)
}

func (h *ConsoleHost) Close() {
	h.closeOnce.Do(func() {
		h.log.Info("host close requested")
		if h.onClose != nil {
			h.onClose()
		}
	})
}
