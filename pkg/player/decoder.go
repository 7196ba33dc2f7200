package player

import (
	"fmt"
	"io"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

// BeepDecoder decodes fetched audio through the beep codec set.
type BeepDecoder struct{}

// NewBeepDecoder returns the standard decoder supporting mp3, wav, ogg
// and flac.
func NewBeepDecoder() *BeepDecoder { return &BeepDecoder{} }

// Decode decodes r as the named format. The reader is closed by the
// returned streamer, or immediately on failure.
func (d *BeepDecoder) Decode(format string, r io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)

	switch strings.ToLower(format) {
	case "mp3":
		streamer, f, err = mp3.Decode(r)
	case "wav", "wave":
		streamer, f, err = wav.Decode(r)
	case "ogg", "oga", "vorbis":
		streamer, f, err = vorbis.Decode(r)
	case "flac":
		streamer, f, err = flac.Decode(r)
	default:
		r.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err != nil {
		r.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s stream: %w", format, err)
	}
	return streamer, f, nil
}
