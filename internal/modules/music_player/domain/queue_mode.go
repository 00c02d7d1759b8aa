package domain

import "fmt"

// QueueMode selects how the queue picks the next track.
type QueueMode int

const (
	QueueModeNormal  QueueMode = iota // FIFO, finished tracks are dropped
	QueueModeLoop                     // FIFO, finished tracks go back to the tail
	QueueModeShuffle                  // Uniform random pick from pending tracks
)

// QueueModes lists every mode in display order.
var QueueModes = []QueueMode{QueueModeNormal, QueueModeLoop, QueueModeShuffle}

// String returns a human-readable representation of the queue mode.
func (m QueueMode) String() string {
	switch m {
	case QueueModeNormal:
		return "normal"
	case QueueModeLoop:
		return "loop"
	case QueueModeShuffle:
		return "shuffle"
	default:
		return fmt.Sprintf("QueueMode(%d)", int(m))
	}
}

// ParseQueueMode converts a string to a QueueMode.
func ParseQueueMode(s string) (QueueMode, error) {
	for _, m := range QueueModes {
		if m.String() == s {
			return m, nil
		}
	}
	return QueueModeNormal, fmt.Errorf("unknown queue mode %q", s)
}
