package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/pixelforge/internal/apperrors"
	"github.com/nkiryanov/pixelforge/internal/domain"
	"github.com/nkiryanov/pixelforge/internal/models"
)

type GenerationRepo struct {
	DB DBTX
}

// One statement, so a generation is never stored without its images
// Image ids come from the global image_id_seq
const createGeneration = `-- name: CreateGeneration
WITH g AS (
	INSERT INTO generations (id, user_id, prompt, style, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
)
INSERT INTO generation_images (generation_id, position, url)
SELECT g.id, u.position, u.url
FROM g, unnest($6::text[]) WITH ORDINALITY AS u(url, position)
RETURNING id, position, url
`

func (r *GenerationRepo) Create(ctx context.Context, gen domain.Generation) (domain.Generation, error) {
	urls := make([]string, len(gen.Images))
	for i, img := range gen.Images {
		urls[i] = img.URL
	}

	type imageRow struct {
		ID       int64
		Position int64
		URL      string
	}

	rows, _ := r.DB.Query(ctx, createGeneration, gen.ID, gen.UserID, gen.Prompt, gen.Style, gen.CreatedAt, urls)
	images, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (imageRow, error) {
		var i imageRow
		err := row.Scan(&i.ID, &i.Position, &i.URL)
		return i, err
	})
	if err != nil {
		return gen, fmt.Errorf("db error: %w", err)
	}

	slices.SortFunc(images, func(a, b imageRow) int { return int(a.Position - b.Position) })

	gen.Images = make([]models.ImageRef, len(images))
	for i, img := range images {
		gen.Images[i] = models.ImageRef{ID: img.ID, URL: img.URL}
	}
	return gen, nil
}

const listGenerations = `-- name: ListGenerationsByUser
SELECT g.id, g.user_id, g.prompt, g.style, g.created_at, i.id, i.url
FROM generations g
LEFT JOIN generation_images i ON i.generation_id = g.id
WHERE g.user_id = $1
ORDER BY g.seq DESC, i.position
`

func (r *GenerationRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Generation, error) {
	rows, err := r.DB.Query(ctx, listGenerations, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []domain.Generation
	for rows.Next() {
		var (
			g        domain.Generation
			imageID  *int64
			imageURL *string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Prompt, &g.Style, &g.CreatedAt, &imageID, &imageURL); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		// Rows of one generation are adjacent
		if len(out) == 0 || out[len(out)-1].ID != g.ID {
			out = append(out, g)
		}
		if imageID != nil {
			last := &out[len(out)-1]
			last.Images = append(last.Images, models.ImageRef{ID: *imageID, URL: *imageURL})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

const getImage = `-- name: GetImage
SELECT i.id, i.url
FROM generation_images i
JOIN generations g ON g.id = i.generation_id
WHERE i.id = $1 AND g.user_id = $2
`

func (r *GenerationRepo) GetImage(ctx context.Context, userID int64, imageID int64) (models.ImageRef, error) {
	rows, _ := r.DB.Query(ctx, getImage, imageID, userID)
	image, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[models.ImageRef])

	switch {
	case err == nil:
		return image, nil
	case errors.Is(err, pgx.ErrNoRows):
		return image, fmt.Errorf("repo error: %w", apperrors.ErrImageNotFound)
	default:
		return image, fmt.Errorf("db error: %w", err)
	}
}

var _ domain.GenerationRepo = (*GenerationRepo)(nil)
