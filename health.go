package replog

import "fmt"

// Health is the master's view of a secondary.
type Health uint8

const (
	Healthy Health = iota
	Suspected
	Unhealthy
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Suspected:
		return "suspected"
	case Unhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("health(%d)", uint8(h))
	}
}

func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Health) UnmarshalText(b []byte) error {
	switch string(b) {
	case "healthy":
		*h = Healthy
	case "suspected":
		*h = Suspected
	case "unhealthy":
		*h = Unhealthy
	default:
		return fmt.Errorf("unknown health %q", string(b))
	}
	return nil
}
