package playback

import "errors"

// ErrNotReady is returned by VirtualBuffer.Play before its media has loaded.
var ErrNotReady = errors.New("buffer not ready")

// VirtualBuffer is the server-side model of a client media element. The
// client reports progress through the session; the buffer only records
// what it was told to do so the session can echo it back.
type VirtualBuffer struct {
	src      string
	position float64
	muted    bool
	playing  bool
	ready    bool
	loads    int
}

// BufferState is the JSON view of a VirtualBuffer.
type BufferState struct {
	Source   string  `json:"source"`
	Position float64 `json:"position"`
	Muted    bool    `json:"muted"`
	Playing  bool    `json:"playing"`
	Ready    bool    `json:"ready"`
}

func NewVirtualBuffer() *VirtualBuffer { return &VirtualBuffer{} }

func (b *VirtualBuffer) Source() string { return b.src }

func (b *VirtualBuffer) Load(src string) {
	b.src = src
	b.position = 0
	b.playing = false
	b.ready = false
	b.loads++
}

func (b *VirtualBuffer) Seek(t float64) { b.position = t }

func (b *VirtualBuffer) Play() error {
	if b.src == "" {
		return ErrNotReady
	}
	b.playing = true
	return nil
}

func (b *VirtualBuffer) Pause()              { b.playing = false }
func (b *VirtualBuffer) SetMuted(muted bool) { b.muted = muted }

// Advance records client-reported progress; any progress means the media
// is ready.
func (b *VirtualBuffer) Advance(t float64) {
	b.position = t
	b.ready = true
}

// Loads counts how many times the buffer fetched new media.
func (b *VirtualBuffer) Loads() int { return b.loads }

func (b *VirtualBuffer) State() BufferState {
	return BufferState{
		Source:   b.src,
		Position: b.position,
		Muted:    b.muted,
		Playing:  b.playing,
		Ready:    b.ready,
	}
}
