package repository

import (
	"context"

	"github.com/user/offer-image-service/internal/entity"
)

// Classifier analyses one image with free-form instructions.
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType, instructions string) (*entity.Analysis, error)
	// Model names the backing model, for status reporting.
	Model() string
}
