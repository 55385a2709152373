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

const defaultGraphAPI = "https://graph.microsoft.com/v1.0"

// OneDrive lists images behind a OneDrive or SharePoint sharing link.
type OneDrive struct {
	baseURL string
	api     apiClient
	logger  *slog.Logger
}

func NewOneDrive(logger *slog.Logger) *OneDrive {
	return &OneDrive{
		baseURL: defaultGraphAPI,
		api:     newAPIClient(constants.ProviderOneDrive),
		logger:  logger,
	}
}

type driveItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebURL      string `json:"webUrl"`
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	Folder      *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	ParentReference struct {
		DriveID string `json:"driveId"`
	} `json:"parentReference"`
}

func (it driveItem) mimeType() string {
	if it.File == nil {
		return ""
	}
	return strings.ToLower(it.File.MimeType)
}

func (it driveItem) image() Image {
	id := it.ID
	if it.ParentReference.DriveID != "" {
		id = it.ParentReference.DriveID + "|" + it.ID
	}
	return Image{
		ID:       id,
		Name:     it.Name,
		MimeType: it.mimeType(),
		Link:     it.WebURL,
		Handle:   it.DownloadURL,
	}
}

type driveItemList struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

func (o *OneDrive) List(ctx context.Context, ref Ref, cred Credential) ([]Image, error) {
	if cred.Token == "" {
		return nil, &AuthError{Provider: constants.ProviderOneDrive}
	}

	// share ids are base64url with a "u!" prefix, already path safe
	shareURL := o.baseURL + "/shares/" + ref.ID + "/driveItem"
	var root driveItem
	if err := o.api.getJSON(ctx, shareURL, cred.Token, &root); err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}

	if root.Folder == nil {
		if strings.HasPrefix(root.mimeType(), "image/") {
			return []Image{root.image()}, nil
		}
		return []Image{}, nil
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(constants.DefaultPageSize))
	next := shareURL + "/children?" + params.Encode()

	var images []Image
	for next != "" && len(images) < constants.MaxPhotosPerFetch {
		var page driveItemList
		if err := o.api.getJSON(ctx, next, cred.Token, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Value {
			if strings.HasPrefix(it.mimeType(), "image/") {
				images = append(images, it.image())
			}
		}
		o.logger.Debug("listed onedrive page", "items", len(page.Value), "images", len(images))
		next = page.NextLink
	}
	return images, nil
}

func (o *OneDrive) Download(ctx context.Context, img Image, cred Credential) ([]byte, error) {
	// pre-authenticated, must not carry the bearer token
	if img.Handle != "" {
		data, err := o.api.getBytes(ctx, img.Handle, "")
		if err == nil {
			return data, nil
		}
		o.logger.Debug("download url failed, falling back to graph", "image", img.Name, "error", err)
	}
	if cred.Token == "" {
		return nil, &AuthError{Provider: constants.ProviderOneDrive}
	}

	endpoint := o.baseURL + "/me/drive/items/" + url.PathEscape(img.ID) + "/content"
	if driveID, itemID, ok := strings.Cut(img.ID, "|"); ok {
		endpoint = o.baseURL + "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID) + "/content"
	}
	data, err := o.api.getBytes(ctx, endpoint, cred.Token)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", img.Name, err)
	}
	return data, nil
}
