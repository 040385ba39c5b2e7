package entity

import "sync"

// HealthColor orders health states from best to worst.
type HealthColor int

const (
	HealthGreen HealthColor = iota
	HealthYellow
	HealthRed
)

func (c HealthColor) String() string {
	switch c {
	case HealthGreen:
		return "GREEN"
	case HealthYellow:
		return "YELLOW"
	default:
		return "RED"
	}
}

// Health accumulates the results of many checks into one color + message.
// Transitions are monotonic toward worse: once downgraded, the color cannot
// be upgraded within the same check run. Safe for concurrent use.
type Health struct {
	mu      sync.Mutex
	color   HealthColor
	message string
}

func NewHealth() *Health {
	return &Health{color: HealthGreen}
}

// NewFixedHealth builds a pre-set Health, used by the checker override.
func NewFixedHealth(color HealthColor, message string) *Health {
	return &Health{color: color, message: message}
}

// Downgrade worsens the color. Attempts to improve it are ignored; the
// message is only replaced when the color actually worsens.
func (h *Health) Downgrade(color HealthColor, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if color > h.color {
		h.color = color
		h.message = message
	}
}

func (h *Health) Color() HealthColor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.color
}

func (h *Health) Message() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.message
}
