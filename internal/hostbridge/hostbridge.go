// Package hostbridge describes the capabilities the Telegram host runtime offers to the app
// The real bridge lives in the host; this package has the variants the Go client runs with
package hostbridge

import (
	"sync"

	"github.com/nkiryanov/pixelforge/internal/logger"
)

type ImpactStyle string

const (
	ImpactLight  ImpactStyle = "light"
	ImpactMedium ImpactStyle = "medium"
	ImpactHeavy  ImpactStyle = "heavy"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

type Bridge interface {
	// Available is false when the app runs outside the host
	Available() bool

	// Ready tells the host the app is ready to be shown
	Ready()

	// Expand asks the host to open the app at full height
	Expand()

	// InitData returns the signed init payload, empty until Initialized is closed
	InitData() string

	// Initialized is closed once init data is delivered
	Initialized() <-chan struct{}

	ImpactOccurred(style ImpactStyle)
	NotificationOccurred(kind NotificationType)
}

// Unavailable is the bridge outside the host: init data never arrives, feedback is dropped
type Unavailable struct {
	never chan struct{}
}

func NewUnavailable() *Unavailable {
	return &Unavailable{never: make(chan struct{})}
}

func (u *Unavailable) Available() bool                       { return false }
func (u *Unavailable) Ready()                                {}
func (u *Unavailable) Expand()                               {}
func (u *Unavailable) InitData() string                      { return "" }
func (u *Unavailable) Initialized() <-chan struct{}          { return u.never }
func (u *Unavailable) ImpactOccurred(ImpactStyle)            {}
func (u *Unavailable) NotificationOccurred(NotificationType) {}

// Event is a feedback request recorded by Local
type Event struct {
	Kind  string // "impact" or "notification"
	Value string
}

// Local is a bridge driven by the process itself: init data comes from config or tests
// Feedback requests are logged and recorded
type Local struct {
	logger logger.Logger

	mu          sync.Mutex
	initData    string
	initialized chan struct{}
	delivered   bool
	ready       bool
	expanded    bool
	events      []Event
}

// NewLocal creates bridge waiting for Deliver
func NewLocal(l logger.Logger) *Local {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Local{
		logger:      l.WithGroup("bridge"),
		initialized: make(chan struct{}),
	}
}

// NewStatic creates bridge with init data delivered already
func NewStatic(initData string, l logger.Logger) *Local {
	b := NewLocal(l)
	b.Deliver(initData)
	return b
}

// Deliver sets init data and fires Initialized. Only the first call has effect
func (b *Local) Deliver(initData string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.delivered {
		return
	}
	b.delivered = true
	b.initData = initData
	close(b.initialized)
}

func (b *Local) Available() bool {
	return true
}

func (b *Local) Ready() {
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	b.logger.Debug("App ready")
}

func (b *Local) Expand() {
	b.mu.Lock()
	b.expanded = true
	b.mu.Unlock()
	b.logger.Debug("App expanded")
}

func (b *Local) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready && b.expanded
}

func (b *Local) InitData() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initData
}

func (b *Local) Initialized() <-chan struct{} {
	return b.initialized
}

func (b *Local) ImpactOccurred(style ImpactStyle) {
	b.record(Event{Kind: "impact", Value: string(style)})
}

func (b *Local) NotificationOccurred(kind NotificationType) {
	b.record(Event{Kind: "notification", Value: string(kind)})
}

// Events returns recorded feedback requests in order
func (b *Local) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

func (b *Local) record(e Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
	b.logger.Debug("Haptic feedback", "kind", e.Kind, "value", e.Value)
}
