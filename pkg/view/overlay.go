package view

import (
	"slices"
	"sync"
)

// Overlay is the modal shown above the chat, if any. The concrete types below
// are the only implementations.
type Overlay interface {
	overlay()
}

type NoOverlay struct{}

type CreateRoomOverlay struct {
	CourseID string
}

type UploadOverlay struct {
	CourseID string
}

type DeleteOverlay struct {
	CourseID string
}

func (NoOverlay) overlay()         {}
func (CreateRoomOverlay) overlay() {}
func (UploadOverlay) overlay()     {}
func (DeleteOverlay) overlay()     {}

// OverlayHost owns the current overlay. At most one overlay is open at a time and
// opening another replaces it.
type OverlayHost struct {
	mu        sync.Mutex
	current   Overlay
	listeners []func(Overlay)
}

func NewOverlayHost() *OverlayHost {
	return &OverlayHost{current: NoOverlay{}}
}

func (h *OverlayHost) Current() Overlay {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return NoOverlay{}
	}
	return h.current
}

func (h *OverlayHost) OnChange(f func(Overlay)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, f)
}

func (h *OverlayHost) Open(o Overlay) {
	if o == nil {
		o = NoOverlay{}
	}
	h.set(o)
}

func (h *OverlayHost) Close() {
	h.set(NoOverlay{})
}

func (h *OverlayHost) set(o Overlay) {
	h.mu.Lock()
	if h.current == o {
		h.mu.Unlock()
		return
	}
	h.current = o
	listeners := slices.Clone(h.listeners)
	h.mu.Unlock()

	for _, f := range listeners {
		f(o)
	}
}
