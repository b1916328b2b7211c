package model

// OpenOffset marks a note whose offset has not been resolved yet.
const OpenOffset int64 = -1

// NoVoice means the parser had no opinion about which voice a note belongs to.
const NoVoice = -1

type NoteEvent struct {
	ID       int
	Onset    int64 // microseconds
	Offset   int64 // microseconds, or OpenOffset
	Pitch    uint8
	Velocity uint8
	Channel  uint8

	// NOTE: only a hint, the voice model is free to ignore it
	Voice int
}

func (n NoteEvent) IsClosed() bool {
	return n.Offset != OpenOffset
}

func (n NoteEvent) Duration() int64 {
	if !n.IsClosed() {
		return 0
	}
	return n.Offset - n.Onset
}

// Batch is a set of notes sharing one onset time.
type Batch = []NoteEvent
