package player

import (
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// SpeakerOutput plays through the process-wide beep speaker.
type SpeakerOutput struct {
	mu   sync.Mutex
	open bool
	rate beep.SampleRate
}

// NewSpeakerOutput returns the real audio device output.
func NewSpeakerOutput() *SpeakerOutput { return &SpeakerOutput{} }

func (o *SpeakerOutput) Open(sampleRate beep.SampleRate, bufferSize int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open && o.rate == sampleRate {
		return nil
	}
	if err := speaker.Init(sampleRate, bufferSize); err != nil {
		return err
	}
	o.open = true
	o.rate = sampleRate
	return nil
}

func (o *SpeakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *SpeakerOutput) Lock()                { speaker.Lock() }
func (o *SpeakerOutput) Unlock()              { speaker.Unlock() }
func (o *SpeakerOutput) Clear()               { speaker.Clear() }

func (o *SpeakerOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open {
		speaker.Clear()
		o.open = false
	}
	return nil
}

// SampleRate returns the rate the device was opened at, or zero.
func (o *SpeakerOutput) SampleRate() beep.SampleRate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rate
}

// NullOutput is an Output that accepts streams without a device. Used in
// tests and in headless environments.
type NullOutput struct {
	mu       sync.Mutex
	open     bool
	failOpen error
	streams  []beep.Streamer
}

// NewNullOutput returns a silent output. A non-nil failOpen makes Open
// fail, which is how tests simulate a locked platform refusing unlock.
func NewNullOutput(failOpen error) *NullOutput {
	return &NullOutput{failOpen: failOpen}
}

func (o *NullOutput) Open(beep.SampleRate, int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpen != nil {
		return o.failOpen
	}
	o.open = true
	return nil
}

func (o *NullOutput) Play(s beep.Streamer) {
	o.mu.Lock()
	o.streams = append(o.streams, s)
	o.mu.Unlock()
}

func (o *NullOutput) Lock()   {}
func (o *NullOutput) Unlock() {}

func (o *NullOutput) Clear() {
	o.mu.Lock()
	o.streams = nil
	o.mu.Unlock()
}

func (o *NullOutput) Close() error {
	o.mu.Lock()
	o.open = false
	o.streams = nil
	o.mu.Unlock()
	return nil
}

// IsOpen reports whether Open succeeded.
func (o *NullOutput) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// ActiveStreams returns how many streams were handed to Play.
func (o *NullOutput) ActiveStreams() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}
