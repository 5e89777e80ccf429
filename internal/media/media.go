package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/joshua-takyi/eventix/internal/models"
)

const EventsFolder = "events"

// Store uploads event images and removes them again.
type Store interface {
	Upload(ctx context.Context, source string) (models.Image, error)
	Delete(ctx context.Context, publicID string) error
}

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cld *cloudinary.Cloudinary, folder string) *CloudinaryStore {
	return &CloudinaryStore{cld: cld, folder: folder}
}

// Upload accepts anything Cloudinary does: a remote URL, a data URI or a local path.
func (s *CloudinaryStore) Upload(ctx context.Context, source string) (models.Image, error) {
	res, err := s.cld.Upload.Upload(ctx, source, uploader.UploadParams{
		Folder: s.folder,
		Tags:   []string{"eventix"},
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to upload image: %w", err)
	}
	if res.Error.Message != "" {
		return models.Image{}, fmt.Errorf("failed to upload image: %s", res.Error.Message)
	}
	return models.Image{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("failed to delete image %s: %s", publicID, res.Error.Message)
	}
	return nil
}

// PassthroughStore keeps image URLs as given. Used when Cloudinary is not configured.
type PassthroughStore struct {
	Logger *slog.Logger
}

func (p PassthroughStore) Upload(ctx context.Context, source string) (models.Image, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return models.Image{}, models.ValidationError("image uploads are disabled, provide an image URL")
	}
	return models.Image{URL: source}, nil
}

func (p PassthroughStore) Delete(ctx context.Context, publicID string) error {
	p.Logger.Debug("Skipping image delete, no media store configured", "public_id", publicID)
	return nil
}

// UploadAll uploads every non-empty source, removing what was already
// uploaded if a later one fails.
func UploadAll(ctx context.Context, store Store, sources []string, logger *slog.Logger) ([]models.Image, error) {
	images := make([]models.Image, 0, len(sources))
	for _, src := range sources {
		if strings.TrimSpace(src) == "" {
			continue
		}
		img, err := store.Upload(ctx, src)
		if err != nil {
			DeleteAll(ctx, store, images, logger)
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// DeleteAll is best effort: failures are logged and skipped.
func DeleteAll(ctx context.Context, store Store, images []models.Image, logger *slog.Logger) {
	for _, img := range images {
		if img.PublicID == "" {
			continue
		}
		if err := store.Delete(ctx, img.PublicID); err != nil {
			logger.Warn("Failed to delete image", "public_id", img.PublicID, "error", err)
		}
	}
}
