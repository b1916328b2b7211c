package batch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jsphweid/metalign/model"
)

var ErrInvalidBatch = errors.New("invalid batch")

// CreateBatchKey returns a canonical key for a batch. Two batches with the
// same notes in any order produce the same key.
func CreateBatchKey(b model.Batch) string {
	if len(b) == 0 {
		return ""
	}
	notes := make([]model.NoteEvent, len(b))
	copy(notes, b)
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Pitch != notes[j].Pitch {
			return notes[i].Pitch < notes[j].Pitch
		}
		return notes[i].ID < notes[j].ID
	})
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d@", notes[0].Onset)
	for i, note := range notes {
		fmt.Fprintf(&sb, "%v:%v", note.Pitch, note.ID)
		if i < len(notes)-1 {
			sb.WriteString("-")
		}
	}
	return sb.String()
}

// FromNotes groups notes into batches of equal onset, ordered by onset.
// Within a batch notes are ordered by pitch.
func FromNotes(notes []model.NoteEvent) []model.Batch {
	onsetToBatch := make(map[int64]model.Batch)
	for _, note := range notes {
		onsetToBatch[note.Onset] = append(onsetToBatch[note.Onset], note)
	}

	onsets := make([]int64, 0, len(onsetToBatch))
	for k := range onsetToBatch {
		onsets = append(onsets, k)
	}
	sort.Slice(onsets, func(i, j int) bool {
		return onsets[i] < onsets[j]
	})

	res := make([]model.Batch, 0, len(onsets))
	for _, onset := range onsets {
		b := onsetToBatch[onset]
		sort.Slice(b, func(i, j int) bool {
			if b[i].Pitch != b[j].Pitch {
				return b[i].Pitch < b[j].Pitch
			}
			return b[i].ID < b[j].ID
		})
		res = append(res, b)
	}
	return res
}

// Validate rejects batch sequences the search engine must never see: empty
// batches, mixed onsets, offsets before onsets and onsets going backwards.
func Validate(batches []model.Batch) error {
	last := int64(-1)
	for i, b := range batches {
		if len(b) == 0 {
			return fmt.Errorf("%w: batch %d is empty", ErrInvalidBatch, i)
		}
		onset := b[0].Onset
		if onset < 0 {
			return fmt.Errorf("%w: batch %d has negative onset %d", ErrInvalidBatch, i, onset)
		}
		if onset <= last {
			return fmt.Errorf("%w: batch %d onset %d does not follow %d", ErrInvalidBatch, i, onset, last)
		}
		for _, note := range b {
			if note.Onset != onset {
				return fmt.Errorf("%w: batch %d mixes onsets %d and %d", ErrInvalidBatch, i, onset, note.Onset)
			}
			if note.IsClosed() && note.Offset < note.Onset {
				return fmt.Errorf("%w: note %d ends before it starts", ErrInvalidBatch, note.ID)
			}
		}
		last = onset
	}
	return nil
}
