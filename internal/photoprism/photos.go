package photoprism

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// GetPhotoDetails retrieves full photo details including all metadata
func (pp *PhotoPrism) GetPhotoDetails(ctx context.Context, photoUID string) (map[string]any, error) {
	result, err := doGetJSON[map[string]any](ctx, pp, "photos/"+url.PathEscape(photoUID))
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// findPrimaryFile finds the primary file map from the Files array in photo details.
func findPrimaryFile(files []any) map[string]any {
	for _, f := range files {
		file, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if primary, _ := file["Primary"].(bool); primary {
			return file
		}
	}
	if first, ok := files[0].(map[string]any); ok {
		return first
	}
	return nil
}

// findPrimaryFileHash extracts the hash of the primary file from photo details.
func findPrimaryFileHash(details map[string]any) string {
	files, ok := details["Files"].([]any)
	if !ok || len(files) == 0 {
		return ""
	}
	primaryFile := findPrimaryFile(files)
	if primaryFile == nil {
		return ""
	}
	hash, _ := primaryFile["Hash"].(string)
	return hash
}

// GetPhotoDownload downloads the primary file content for a photo.
// Photo listings already carry the primary hash, so callers holding a Photo
// should prefer GetFileDownload(photo.Hash).
func (pp *PhotoPrism) GetPhotoDownload(ctx context.Context, photoUID string) ([]byte, string, error) {
	details, err := pp.GetPhotoDetails(ctx, photoUID)
	if err != nil {
		return nil, "", fmt.Errorf("could not get photo details: %w", err)
	}

	fileHash := findPrimaryFileHash(details)
	if fileHash == "" {
		return nil, "", errors.New("could not find file hash for photo")
	}

	return pp.GetFileDownload(ctx, fileHash)
}

// GetFileDownload downloads a file using its hash via the /api/v1/dl/{hash} endpoint
func (pp *PhotoPrism) GetFileDownload(ctx context.Context, fileHash string) ([]byte, string, error) {
	token := pp.downloadToken
	if token == "" {
		token = pp.token
	}
	endpoint := pp.resolveURL("dl", fileHash+"?t="+url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not create request: %w", err)
	}
	if pp.downloadToken == "" {
		req.Header.Set("Authorization", "Bearer "+pp.token)
	}

	resp, err := pp.client.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("could not read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
