package midi

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/jsphweid/metalign/model"
	"gitlab.com/gomidi/midi/v2/smf"
)

func ReadMidiFile(filepath string) (s *smf.SMF, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s, e = nil, fmt.Errorf("parsing midi file %v: %v", filepath, r)
		}
	}()

	dat, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading midi file: %w", err)
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("parsing midi file %v: %w", filepath, err)
	}
	return res, nil
}

type ParseOptions struct {
	// ChannelHints uses the MIDI channel as the voice hint of every note.
	ChannelHints bool
}

type pending struct {
	onset    int64
	velocity uint8
	channel  uint8
}

type noteKey struct {
	channel uint8
	key     uint8
}

// GetNotes pairs note on and note off events of every track into note
// events, ordered by onset then pitch. A note on with velocity 0 ends a note.
// Notes still sounding at the end keep an open offset.
func GetNotes(s *smf.SMF, opts ParseOptions) ([]model.NoteEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("no midi data")
	}

	var res []model.NoteEvent
	for _, events := range s.Tracks {
		sounding := make(map[noteKey][]pending)
		var absTicks int64
		for _, event := range events {
			absTicks += int64(event.Delta)
			absTime := s.TimeAt(absTicks)
			var channel, key, velocity uint8
			switch {
			case event.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
				k := noteKey{channel, key}
				sounding[k] = append(sounding[k], pending{onset: absTime, velocity: velocity, channel: channel})
			case event.Message.GetNoteOn(&channel, &key, &velocity),
				event.Message.GetNoteOff(&channel, &key, &velocity):
				k := noteKey{channel, key}
				queue := sounding[k]
				if len(queue) == 0 {
					continue
				}
				p := queue[0]
				sounding[k] = queue[1:]
				res = append(res, newNote(p, key, absTime, opts))
			}
		}
		for k, queue := range sounding {
			for _, p := range queue {
				res = append(res, newNote(p, k.key, model.OpenOffset, opts))
			}
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Onset != res[j].Onset {
			return res[i].Onset < res[j].Onset
		}
		if res[i].Pitch != res[j].Pitch {
			return res[i].Pitch < res[j].Pitch
		}
		if res[i].Channel != res[j].Channel {
			return res[i].Channel < res[j].Channel
		}
		return res[i].Offset < res[j].Offset
	})
	for i := range res {
		res[i].ID = i
	}
	return res, nil
}

func newNote(p pending, key uint8, offset int64, opts ParseOptions) model.NoteEvent {
	n := model.NoteEvent{
		Onset:    p.onset,
		Offset:   offset,
		Pitch:    key,
		Velocity: p.velocity,
		Channel:  p.channel,
		Voice:    model.NoVoice,
	}
	if opts.ChannelHints {
		n.Voice = int(p.channel)
	}
	return n
}
