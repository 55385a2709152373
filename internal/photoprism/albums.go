package photoprism

import (
	"context"
	"fmt"
	"net/url"
)

// GetAlbum retrieves a single album by UID
func (pp *PhotoPrism) GetAlbum(ctx context.Context, albumUID string) (*Album, error) {
	return doGetJSON[Album](ctx, pp, "albums/"+url.PathEscape(albumUID))
}

// GetAlbumPhotos retrieves photos from a specific album
func (pp *PhotoPrism) GetAlbumPhotos(ctx context.Context, albumUID string, count int, offset int) ([]Photo, error) {
	endpoint := fmt.Sprintf("photos?count=%d&offset=%d&s=%s&merged=true", count, offset, url.QueryEscape(albumUID))
	result, err := doGetJSON[[]Photo](ctx, pp, endpoint)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// GetAllAlbumPhotos pages through an album until a short page is returned or max photos were read.
func (pp *PhotoPrism) GetAllAlbumPhotos(ctx context.Context, albumUID string, pageSize, max int) ([]Photo, error) {
	var all []Photo
	for offset := 0; offset < max; offset += pageSize {
		page, err := pp.GetAlbumPhotos(ctx, albumUID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	if len(all) > max {
		all = all[:max]
	}
	return all, nil
}
