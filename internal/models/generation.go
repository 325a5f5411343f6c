package models

import (
	"time"
)

// ImageRef is a generated image. ID is unique across the whole history
type ImageRef struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// GenerationRecord is one generation request and the images it produced
// A pending record has no images yet and is replaced or removed once the request completes
type GenerationRecord struct {
	ID        string
	Images    []ImageRef
	Timestamp time.Time
	Pending   bool
}

// FlattenImages returns images of all records in history order
func FlattenImages(records []GenerationRecord) []ImageRef {
	var images []ImageRef
	for _, r := range records {
		images = append(images, r.Images...)
	}
	return images
}

type ArtStyle struct {
	ID    string
	Label string
	Image string // preview url, empty for "no style"
}

const DefaultStyle = "none"

// ArtStyles is the catalogue offered on the home tab
var ArtStyles = []ArtStyle{
	{ID: "none", Label: "No Style"},
	{ID: "anime", Label: "Anime", Image: "https://images.pexels.com/photos/2693529/pexels-photo-2693529.jpeg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "fantasy", Label: "Fantasy", Image: "https://images.pexels.com/photos/1624496/pexels-photo-1624496.jpeg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "sci-fi", Label: "Sci-Fi", Image: "https://images.pexels.com/photos/2156/sky-earth-space-working.jpg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "realistic", Label: "Realistic", Image: "https://images.pexels.com/photos/220453/pexels-photo-220453.jpeg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "abstract", Label: "Abstract", Image: "https://images.pexels.com/photos/1193743/pexels-photo-1193743.jpeg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "cartoon", Label: "Cartoon", Image: "https://images.pexels.com/photos/1998594/pexels-photo-1998594.jpeg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
	{ID: "cyberpunk", Label: "Cyberpunk", Image: "https://images.pexels.com/photos/2156/sky-earth-space-working.jpg?auto=compress&cs=tinysrgb&w=100&h=100&fit=crop"},
}

// LookupStyle returns style by id
func LookupStyle(id string) (ArtStyle, bool) {
	for _, s := range ArtStyles {
		if s.ID == id {
			return s, true
		}
	}
	return ArtStyle{}, false
}
