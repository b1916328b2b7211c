package sample

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Excerpt copies mf starting at fromTick. Each track keeps at most maxNotes
// note on/off events; 0 keeps them all. Other events before fromTick are
// moved to the start so tempo and program changes still apply.
func Excerpt(mf *smf.SMF, fromTick uint64, maxNotes int) *smf.SMF {
	var res smf.SMF
	slog.Debug("creating excerpt", "time_format", mf.TimeFormat, "from_tick", fromTick, "max_notes", maxNotes)
	res.TimeFormat = mf.TimeFormat

	for _, track := range mf.Tracks {
		var newTrack smf.Track
		var absTicks, lastTicks uint64
		var numNoteOnOff int
		add := func(evt smf.Event) {
			at := uint64(0)
			if absTicks > fromTick {
				at = absTicks - fromTick
			}
			evt.Delta = uint32(at - lastTicks)
			lastTicks = at
			newTrack = append(newTrack, evt)
		}

	TrackEventLoop:
		for _, evt := range track {
			absTicks += uint64(evt.Delta)
			switch {
			case evt.Message.Is(smf.MetaEndOfTrackMsg):
				break TrackEventLoop
			case evt.Message.Is(midi.NoteOnMsg),
				evt.Message.Is(midi.NoteOffMsg):
				if absTicks < fromTick {
					continue
				}
				add(evt)
				numNoteOnOff++
				if maxNotes > 0 && numNoteOnOff >= maxNotes {
					break TrackEventLoop
				}
			default:
				add(evt)
			}
		}

		newTrack.Close(0)
		res.Tracks = append(res.Tracks, newTrack)
	}

	return &res
}
