package handlers

import (
	"net/http"

	"github.com/nkiryanov/pixelforge/internal/handlers/render"
	"github.com/nkiryanov/pixelforge/internal/handlers/userctx"
	"github.com/nkiryanov/pixelforge/internal/models"
)

func handleProfile() http.Handler {
	type response struct {
		Success bool        `json:"success"`
		User    models.User `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{Success: true, User: user})
	})
}
