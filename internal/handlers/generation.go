package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/handlers/render"
	"github.com/nkiryanov/pixelforge/internal/handlers/userctx"
	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/delivery"
)

const (
	messageGenerationFailed = "Something went wrong with the server. Please try again later."
	messageImageSent        = "Image has been sent to your Telegram chat."
	deliveryCaption         = "Generated with PixelForge"
)

type GenerationResponse struct {
	ID        string            `json:"id"`
	Prompt    string            `json:"prompt"`
	Style     string            `json:"style"`
	Images    []models.ImageRef `json:"images"`
	Timestamp time.Time         `json:"timestamp"`
}

func handleGenerate(galleryService galleryService, logger logger.Logger) http.Handler {
	type request struct {
		Prompt string `json:"prompt" validate:"required,max=1000"`
		Style  string `json:"style" validate:"artstyle"`
	}
	type response struct {
		Success   bool              `json:"success"`
		ImageURLs []models.ImageRef `json:"image_urls"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, apperrors.CodeGenerationFailed, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		gen, err := galleryService.Generate(r.Context(), user.ID, data.Prompt, data.Style)
		switch {
		case err == nil:
			render.JSON(w, response{Success: true, ImageURLs: gen.Images})
		case errors.Is(err, apperrors.ErrEmptyPrompt):
			render.ServiceError(w, apperrors.CodeGenerationFailed, "Please enter a description for your image before generating.", http.StatusBadRequest)
		default:
			logger.Error("Generation failed", "error", err, "user_id", user.ID)
			render.ServiceError(w, apperrors.CodeGenerationFailed, messageGenerationFailed, http.StatusInternalServerError)
		}
	})
}

func handleDownload(galleryService galleryService, queue deliveryQueue, logger logger.Logger) http.Handler {
	type response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, apperrors.CodeDownloadFailed, "Internal service error", http.StatusInternalServerError)
			return
		}

		imageID, err := strconv.ParseInt(r.URL.Query().Get("image_id"), 10, 64)
		if err != nil || imageID <= 0 {
			render.ServiceError(w, apperrors.CodeDownloadFailed, "Parameter image_id is required", http.StatusBadRequest)
			return
		}

		image, err := galleryService.Image(r.Context(), user.ID, imageID)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrImageNotFound):
			render.ServiceError(w, apperrors.CodeDownloadFailed, "Image not found", http.StatusNotFound)
			return
		default:
			logger.Error("Failed to get image", "error", err, "image_id", imageID)
			render.ServiceError(w, apperrors.CodeDownloadFailed, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Private chat with the bot has the same id as the user
		err = queue.Enqueue(delivery.Job{ChatID: user.ID, Image: image, Caption: deliveryCaption})
		if err != nil {
			logger.Warn("Failed to enqueue image", "error", err, "image_id", imageID)
			render.ServiceError(w, apperrors.CodeDownloadFailed, "Too many images are being sent. Please try again later.", http.StatusServiceUnavailable)
			return
		}

		render.JSON(w, response{Success: true, Message: messageImageSent})
	})
}

func handleHistory(galleryService galleryService, logger logger.Logger) http.Handler {
	type response struct {
		Success     bool                 `json:"success"`
		Generations []GenerationResponse `json:"generations"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())

		history, err := galleryService.History(r.Context(), user.ID)
		if err != nil {
			logger.Error("Failed to list generations", "error", err, "user_id", user.ID)
			render.ServiceError(w, apperrors.CodeRequestFailed, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := response{Success: true, Generations: make([]GenerationResponse, 0, len(history))}
		for _, g := range history {
			res.Generations = append(res.Generations, GenerationResponse{
				ID:        g.ID,
				Prompt:    g.Prompt,
				Style:     g.Style,
				Images:    g.Images,
				Timestamp: g.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}
