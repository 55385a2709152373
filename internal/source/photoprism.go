package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/photoprism"
)

// PhotoPrism lists the photos of a PhotoPrism album.
type PhotoPrism struct {
	baseURL string
	logger  *slog.Logger
}

func NewPhotoPrism(baseURL string, logger *slog.Logger) *PhotoPrism {
	return &PhotoPrism{baseURL: strings.TrimSuffix(baseURL, "/"), logger: logger}
}

func (p *PhotoPrism) client(cred Credential) (*photoprism.PhotoPrism, error) {
	if cred.Token == "" {
		return nil, &AuthError{Provider: constants.ProviderPhotoPrism}
	}
	return photoprism.NewPhotoPrismFromToken(p.baseURL, cred.Token, cred.DownloadToken)
}

func (p *PhotoPrism) List(ctx context.Context, ref Ref, cred Credential) ([]Image, error) {
	pp, err := p.client(cred)
	if err != nil {
		return nil, err
	}

	photos, err := pp.GetAllAlbumPhotos(ctx, ref.ID, constants.DefaultPageSize, constants.MaxPhotosPerFetch)
	if err != nil {
		return nil, wrapPhotoPrismError(err)
	}

	images := make([]Image, 0, len(photos))
	for _, photo := range photos {
		if photo.Type != "" && photo.Type != "image" && photo.Type != "raw" && photo.Type != "live" {
			continue
		}
		images = append(images, Image{
			ID:       photo.UID,
			Name:     photo.DisplayName(),
			MimeType: photo.Mime,
			Link:     p.baseURL + "/library/browse?view=cards&q=uid:" + photo.UID,
			Handle:   photo.Hash,
		})
	}
	p.logger.Debug("listed photoprism album", "album", ref.ID, "photos", len(photos), "images", len(images))
	return images, nil
}

func (p *PhotoPrism) Download(ctx context.Context, img Image, cred Credential) ([]byte, error) {
	pp, err := p.client(cred)
	if err != nil {
		return nil, err
	}

	var data []byte
	if img.Handle != "" {
		data, _, err = pp.GetFileDownload(ctx, img.Handle)
	} else {
		data, _, err = pp.GetPhotoDownload(ctx, img.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", img.Name, wrapPhotoPrismError(err))
	}
	return data, nil
}

func wrapPhotoPrismError(err error) error {
	if photoprism.IsUnauthorizedError(err) {
		var se *photoprism.StatusError
		errors.As(err, &se)
		return &AuthError{Provider: constants.ProviderPhotoPrism, Reason: fmt.Sprintf("access denied (status %d)", se.Code)}
	}
	return err
}
