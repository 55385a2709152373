package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/kozaktomas/photolink/internal/constants"
)

const defaultDriveAPI = "https://www.googleapis.com/drive/v3"

// GoogleDrive lists image files of a shared Drive folder.
type GoogleDrive struct {
	baseURL string
	api     apiClient
	logger  *slog.Logger
}

func NewGoogleDrive(logger *slog.Logger) *GoogleDrive {
	return &GoogleDrive{
		baseURL: defaultDriveAPI,
		api:     newAPIClient(constants.ProviderGoogleDrive),
		logger:  logger,
	}
}

type driveFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	WebContentLink string `json:"webContentLink"`
}

type driveFileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

func (g *GoogleDrive) List(ctx context.Context, ref Ref, cred Credential) ([]Image, error) {
	if cred.Token == "" {
		return nil, &AuthError{Provider: constants.ProviderGoogleDrive}
	}

	query := fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed=false", ref.ID)
	var images []Image
	pageToken := ""

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", "nextPageToken,files(id,name,mimeType,thumbnailLink,webContentLink)")
		params.Set("pageSize", strconv.Itoa(constants.DefaultPageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var list driveFileList
		if err := g.api.getJSON(ctx, g.baseURL+"/files?"+params.Encode(), cred.Token, &list); err != nil {
			return nil, err
		}

		for _, f := range list.Files {
			images = append(images, Image{
				ID:       f.ID,
				Name:     f.Name,
				MimeType: f.MimeType,
				Link:     driveViewLink(f),
			})
		}
		g.logger.Debug("listed drive page", "folder", ref.ID, "page", page, "files", len(list.Files))

		pageToken = list.NextPageToken
		if pageToken == "" || len(images) >= constants.MaxPhotosPerFetch {
			break
		}
	}
	return images, nil
}

func driveViewLink(f driveFile) string {
	if f.WebContentLink != "" {
		return f.WebContentLink
	}
	return "https://drive.google.com/file/d/" + f.ID + "/view"
}

func (g *GoogleDrive) Download(ctx context.Context, img Image, cred Credential) ([]byte, error) {
	if cred.Token == "" {
		return nil, &AuthError{Provider: constants.ProviderGoogleDrive}
	}
	endpoint := g.baseURL + "/files/" + url.PathEscape(strings.TrimSpace(img.ID)) + "?alt=media"
	data, err := g.api.getBytes(ctx, endpoint, cred.Token)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", img.Name, err)
	}
	return data, nil
}
