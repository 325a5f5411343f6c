package gallery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
)

const (
	defaultImagesPerRequest = 4
	defaultImageBaseURL     = "https://picsum.photos/seed"
	defaultImageSize        = 1024
	maxPromptLength         = 1000
)

type Config struct {
	// Images produced by one request
	ImagesPerRequest int

	// Placeholder image service, every image is "<base>/<seed>/<size>/<size>"
	ImageBaseURL string
	ImageSize    int

	Now func() time.Time
}

// Service stands in for the image generator: it produces placeholder images and keeps the history
type Service struct {
	imagesPerRequest int
	imageBaseURL     string
	imageSize        int
	now              func() time.Time

	// Repository to access long term data
	repo   domain.GenerationRepo
	logger logger.Logger
}

func NewService(cfg Config, repo domain.GenerationRepo, l logger.Logger) *Service {
	if cfg.ImagesPerRequest <= 0 {
		cfg.ImagesPerRequest = defaultImagesPerRequest
	}
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = defaultImageBaseURL
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = defaultImageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		imagesPerRequest: cfg.ImagesPerRequest,
		imageBaseURL:     strings.TrimRight(cfg.ImageBaseURL, "/"),
		imageSize:        cfg.ImageSize,
		now:              cfg.Now,
		repo:             repo,
		logger:           l,
	}
}

// Generate images for the prompt and save them to user's history
// Style has to be one of models.ArtStyles, empty means models.DefaultStyle
func (s *Service) Generate(ctx context.Context, userID int64, prompt string, style string) (domain.Generation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Generation{}, apperrors.ErrEmptyPrompt
	}
	if len(prompt) > maxPromptLength {
		return domain.Generation{}, fmt.Errorf("prompt is longer than %d bytes", maxPromptLength)
	}
	if style == "" {
		style = models.DefaultStyle
	}
	if _, ok := models.LookupStyle(style); !ok {
		return domain.Generation{}, fmt.Errorf("unknown style %q", style)
	}

	id := uuid.NewString()
	images := make([]models.ImageRef, s.imagesPerRequest)
	for i := range images {
		images[i] = models.ImageRef{URL: s.imageURL(fmt.Sprintf("%s-%d", id, i))}
	}

	gen, err := s.repo.Create(ctx, domain.Generation{
		ID:        id,
		UserID:    userID,
		Prompt:    prompt,
		Style:     style,
		Images:    images,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Generation{}, fmt.Errorf("can't save generation. Err: %w", err)
	}

	s.logger.Debug("Images generated", "user_id", userID, "generation_id", gen.ID, "style", style, "count", len(gen.Images))
	return gen, nil
}

// History of user's generations, newest first
func (s *Service) History(ctx context.Context, userID int64) ([]domain.Generation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Image owned by the user
// Has to return apperrors.ErrImageNotFound for foreign or unknown image
func (s *Service) Image(ctx context.Context, userID int64, imageID int64) (models.ImageRef, error) {
	return s.repo.GetImage(ctx, userID, imageID)
}

func (s *Service) imageURL(seed string) string {
	return fmt.Sprintf("%s/%s/%d/%d", s.imageBaseURL, url.PathEscape(seed), s.imageSize, s.imageSize)
}
