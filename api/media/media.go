// Package media stores report and proof images in Cloudinary.
package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/civicgrid/civic-issue-api/models"
)

// Store uploads images and returns their public URLs.
type Store interface {
	Upload(ctx context.Context, file io.Reader, folder string) (string, error)
}

// CloudinaryStore is the production Store backed by Cloudinary.
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStore builds a store from a cloudinary:// URL.
func NewCloudinaryStore(cloudinaryURL string) (*CloudinaryStore, error) {
	if strings.TrimSpace(cloudinaryURL) == "" {
		return nil, fmt.Errorf("cloudinary url not configured: %w", models.ErrInvalidInput)
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{cld: cld}, nil
}

// Upload stores the image under the folder and returns its secure URL.
func (s *CloudinaryStore) Upload(ctx context.Context, file io.Reader, folder string) (string, error) {
	res, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: folder})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", models.ErrExternalDependency)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload image: %s: %w", res.Error.Message, models.ErrExternalDependency)
	}
	return res.SecureURL, nil
}
