// Package app holds presentation state of the mini app and orchestrates services behind it
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/hostbridge"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
)

const maxToasts = 3

const (
	shortToast = 3 * time.Second
	longToast  = 5 * time.Second

	messageEmptyPrompt       = "Please enter a description for your image before generating."
	messageGenerationDefault = "Something went wrong with the server. Please try again later."
	messageDeliverDefault    = "Unable to send image to Telegram. Please try again."
	messageImageSent         = "Image has been sent to your Telegram chat."
)

type generator interface {
	Generate(ctx context.Context, prompt string, style string) ([]models.ImageRef, error)
	DeliverToChat(ctx context.Context, imageID int64) (string, error)
	History(ctx context.Context) ([]models.GenerationRecord, error)
}

type State struct {
	gen    generator
	bridge hostbridge.Bridge
	logger logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	tab        models.Tab
	user       *models.User
	history    []models.GenerationRecord
	toasts     []models.Toast
	generating bool
}

func New(gen generator, bridge hostbridge.Bridge, l logger.Logger) *State {
	if bridge == nil {
		bridge = hostbridge.NewUnavailable()
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &State{
		gen:    gen,
		bridge: bridge,
		logger: l.WithGroup("app"),
		now:    time.Now,
		tab:    models.TabHome,
	}
}

func (s *State) Tab() models.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tab
}

func (s *State) SetTab(tab models.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("unknown tab %q", tab)
	}

	s.bridge.ImpactOccurred(hostbridge.ImpactLight)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tab = tab
	return nil
}

func (s *State) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *State) SetUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
}

// Reset forgets user, history and toasts, used on logout
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.history = nil
	s.toasts = nil
	s.tab = models.TabHome
}

// History returns records newest first, pending one included
func (s *State) History() []models.GenerationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GenerationRecord(nil), s.history...)
}

// LoadHistory replaces history with the backend's, a pending record stays on top
func (s *State) LoadHistory(ctx context.Context) error {
	records, err := s.gen.History(ctx)
	if err != nil {
		s.logger.Warn("Failed to load history", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var history []models.GenerationRecord
	for _, r := range s.history {
		if r.Pending {
			history = append(history, r)
		}
	}
	s.history = append(history, records...)

	s.logger.Debug("History loaded", "records", len(records))
	return nil
}

// Images returns images of all records, the carousel sequence
func (s *State) Images() []models.ImageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.FlattenImages(s.history)
}

func (s *State) ArtStyles() []models.ArtStyle {
	return append([]models.ArtStyle(nil), models.ArtStyles...)
}

func (s *State) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// Toasts returns queued toasts, newest first
func (s *State) Toasts() []models.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Toast(nil), s.toasts...)
}

// Notify queues toast on top, only the newest maxToasts are kept
func (s *State) Notify(toast models.Toast) {
	s.ShowToast(toast)
}

// ShowToast queues toast and returns it with id assigned
func (s *State) ShowToast(toast models.Toast) models.Toast {
	if toast.ID == "" {
		toast.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.toasts = append([]models.Toast{toast}, s.toasts...)
	if len(s.toasts) > maxToasts {
		s.toasts = s.toasts[:maxToasts]
	}
	return toast
}

func (s *State) DismissToast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.toasts {
		if t.ID == id {
			s.toasts = append(s.toasts[:i:i], s.toasts[i+1:]...)
			return
		}
	}
}

// Generate runs one generation: a pending record goes on top of history at once,
// it gets images on success or disappears on failure
func (s *State) Generate(ctx context.Context, prompt string, style string) (models.GenerationRecord, error) {
	if strings.TrimSpace(prompt) == "" {
		s.ShowToast(models.Toast{Type: models.ToastWarning, Title: "Empty Prompt", Message: messageEmptyPrompt, Duration: shortToast})
		return models.GenerationRecord{}, apperrors.ErrEmptyPrompt
	}
	if style == "" {
		style = models.DefaultStyle
	}
	if _, ok := models.LookupStyle(style); !ok {
		s.logger.Warn("Unknown style requested", "style", style)
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return models.GenerationRecord{}, apperrors.ErrGenerationInProgress
	}
	s.generating = true
	pending := models.GenerationRecord{ID: uuid.NewString(), Timestamp: s.now(), Pending: true}
	s.history = append([]models.GenerationRecord{pending}, s.history...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()

	s.bridge.ImpactOccurred(hostbridge.ImpactHeavy)

	images, err := s.gen.Generate(ctx, prompt, style)
	if err != nil {
		s.removeRecord(pending.ID)
		s.logger.Warn("Generation failed", "record_id", pending.ID, "code", apperrors.CodeOf(err), "error", err)
		s.ShowToast(models.Toast{
			Type:     models.ToastError,
			Title:    "Generation Failed",
			Message:  messageOr(err, messageGenerationDefault),
			Duration: longToast,
		})
		return models.GenerationRecord{}, err
	}

	done := pending
	done.Images = images
	done.Pending = false
	s.replaceRecord(done)

	s.logger.Info("Generation completed", "record_id", done.ID, "images", len(images))
	s.ShowToast(models.Toast{
		Type:     models.ToastSuccess,
		Title:    "Images Generated!",
		Message:  fmt.Sprintf("Successfully created %d images.", len(images)),
		Duration: shortToast,
	})
	return done, nil
}

// Deliver sends image to the user's chat
func (s *State) Deliver(ctx context.Context, imageID int64) error {
	s.bridge.ImpactOccurred(hostbridge.ImpactMedium)

	if _, err := s.gen.DeliverToChat(ctx, imageID); err != nil {
		s.logger.Warn("Delivery failed", "image_id", imageID, "code", apperrors.CodeOf(err), "error", err)
		s.ShowToast(models.Toast{
			Type:     models.ToastError,
			Title:    "Download Failed",
			Message:  messageOr(err, messageDeliverDefault),
			Duration: longToast,
		})
		return err
	}

	s.ShowToast(models.Toast{Type: models.ToastSuccess, Title: "Image Sent!", Message: messageImageSent, Duration: shortToast})
	return nil
}

func (s *State) replaceRecord(r models.GenerationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.history {
		if s.history[i].ID == r.ID {
			s.history[i] = r
			return
		}
	}
}

func (s *State) removeRecord(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.history {
		if s.history[i].ID == id {
			s.history = append(s.history[:i:i], s.history[i+1:]...)
			return
		}
	}
}

func messageOr(err error, def string) string {
	if msg := apperrors.MessageOf(err); msg != "" {
		return msg
	}
	return def
}
