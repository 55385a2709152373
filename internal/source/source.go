// Package source lists and downloads the images of a photo album hosted by
// one of the supported providers.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kozaktomas/photolink/internal/constants"
)

var (
	// ErrMalformedSource is returned for sources that cannot be parsed.
	ErrMalformedSource = errors.New("malformed source")
	// ErrUnsupportedProvider is returned for URLs of unknown providers.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Image is one listed album entry.
type Image struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Link     string `json:"link,omitempty"`

	// Handle is a provider specific download shortcut taken from the listing:
	// a pre-authenticated URL for OneDrive, the primary file hash for PhotoPrism.
	Handle string `json:"-"`
}

// Ref is a parsed album source.
type Ref struct {
	Provider string
	// Raw is the source as submitted.
	Raw string
	// ID is the provider specific album identifier: a Drive folder id, a
	// OneDrive share id, a PhotoPrism album UID or a directory path.
	ID string
}

// Credential carries whatever the provider needs to authorize requests.
type Credential struct {
	Token string
	// DownloadToken is used by PhotoPrism for file downloads.
	DownloadToken string
}

// Adapter lists and downloads album images for one provider.
type Adapter interface {
	List(ctx context.Context, ref Ref, cred Credential) ([]Image, error)
	Download(ctx context.Context, img Image, cred Credential) ([]byte, error)
}

// AuthError reports a missing or rejected provider credential.
type AuthError struct {
	Provider string
	Reason   string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: no credentials available", e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

var (
	driveFolderPattern = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	driveIDPattern     = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	albumUIDPattern    = regexp.MustCompile(`/albums/([a-z0-9]+)`)
)

// Detector recognizes the provider of a source.
type Detector struct {
	// PhotoPrismURL is the configured PhotoPrism base URL. Album links on its host are PhotoPrism sources.
	PhotoPrismURL string
}

// DetectProvider detects the provider of a source without PhotoPrism configured.
func DetectProvider(raw string) string {
	return Detector{}.Detect(raw)
}

// Detect returns the provider name for raw, or constants.ProviderUnknown.
func (d Detector) Detect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return constants.ProviderUnknown
	}
	if isLocalPath(raw) {
		return constants.ProviderLocal
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return constants.ProviderUnknown
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "drive.google.com" || host == "docs.google.com":
		return constants.ProviderGoogleDrive
	case host == "onedrive.live.com" || host == "1drv.ms" || strings.HasSuffix(host, ".sharepoint.com") || host == "sharepoint.com":
		return constants.ProviderOneDrive
	case d.isPhotoPrismHost(host):
		return constants.ProviderPhotoPrism
	}
	return constants.ProviderUnknown
}

func (d Detector) isPhotoPrismHost(host string) bool {
	if d.PhotoPrismURL == "" {
		return false
	}
	pu, err := url.Parse(d.PhotoPrismURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(pu.Hostname(), host)
}

func isLocalPath(raw string) bool {
	if strings.HasPrefix(raw, "file://") {
		return true
	}
	return !strings.Contains(raw, "://") && (filepath.IsAbs(raw) || strings.HasPrefix(raw, "."))
}

// Parse validates raw and extracts the provider specific album identifier.
func (d Detector) Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("%w: empty source", ErrMalformedSource)
	}

	provider := d.Detect(raw)
	ref := Ref{Provider: provider, Raw: raw}

	switch provider {
	case constants.ProviderLocal:
		ref.ID = filepath.Clean(strings.TrimPrefix(raw, "file://"))
		return ref, nil
	case constants.ProviderUnknown:
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Ref{}, fmt.Errorf("%w: %q is neither an http(s) URL nor a local path", ErrMalformedSource, raw)
		}
		return Ref{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, u.Hostname())
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Ref{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrMalformedSource, raw)
	}

	switch provider {
	case constants.ProviderGoogleDrive:
		id, err := GoogleDriveFolderID(raw)
		if err != nil {
			return Ref{}, err
		}
		ref.ID = id
	case constants.ProviderOneDrive:
		ref.ID = OneDriveShareID(raw)
	case constants.ProviderPhotoPrism:
		m := albumUIDPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return Ref{}, fmt.Errorf("%w: no album UID in %q", ErrMalformedSource, raw)
		}
		ref.ID = m[1]
	}
	return ref, nil
}

// GoogleDriveFolderID extracts the folder id from a Drive folder link.
func GoogleDriveFolderID(raw string) (string, error) {
	if m := driveFolderPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if m := driveIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: could not extract folder ID from %q", ErrMalformedSource, raw)
}

// OneDriveShareID encodes a sharing link for the Graph shares endpoint.
func OneDriveShareID(shareURL string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(shareURL))
}
