package source

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/kozaktomas/photolink/internal/constants"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://drive.google.com/drive/folders/1AbC_d-E", constants.ProviderGoogleDrive},
		{"https://docs.google.com/open?id=1AbC", constants.ProviderGoogleDrive},
		{"https://onedrive.live.com/?id=ABC%21123", constants.ProviderOneDrive},
		{"https://1drv.ms/f/s!AbCdEf", constants.ProviderOneDrive},
		{"https://contoso.sharepoint.com/:f:/g/personal/x", constants.ProviderOneDrive},
		{"https://photos.example.com/library/albums/at1/view", constants.ProviderUnknown},
		{"https://example.com/album", constants.ProviderUnknown},
		{"/srv/photos/match", constants.ProviderLocal},
		{"./photos", constants.ProviderLocal},
		{"file:///srv/photos", constants.ProviderLocal},
		{"", constants.ProviderUnknown},
		{"not a url", constants.ProviderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := DetectProvider(tt.raw); got != tt.want {
				t.Errorf("DetectProvider(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDetector_PhotoPrism(t *testing.T) {
	d := Detector{PhotoPrismURL: "https://Photos.Example.com"}

	if got := d.Detect("https://photos.example.com/library/albums/at1/view"); got != constants.ProviderPhotoPrism {
		t.Errorf("expected photoprism, got %s", got)
	}
	if got := d.Detect("https://other.example.com/library/albums/at1/view"); got != constants.ProviderUnknown {
		t.Errorf("expected unknown for other host, got %s", got)
	}
}

func TestDetector_Parse(t *testing.T) {
	d := Detector{PhotoPrismURL: "https://photos.example.com"}

	tests := []struct {
		name     string
		raw      string
		provider string
		id       string
		wantErr  error
	}{
		{"drive folder", "https://drive.google.com/drive/folders/1AbC_d-E?usp=sharing", constants.ProviderGoogleDrive, "1AbC_d-E", nil},
		{"drive open id", "https://drive.google.com/open?id=XyZ_9", constants.ProviderGoogleDrive, "XyZ_9", nil},
		{"drive without id", "https://drive.google.com/drive/my-drive", "", "", ErrMalformedSource},
		{"photoprism album", "https://photos.example.com/library/albums/at8e94h6pa15hbk7/view", constants.ProviderPhotoPrism, "at8e94h6pa15hbk7", nil},
		{"photoprism without album", "https://photos.example.com/library/browse", "", "", ErrMalformedSource},
		{"local", "/srv/photos/../photos/match", constants.ProviderLocal, "/srv/photos/match", nil},
		{"unknown host", "https://example.com/album/1", "", "", ErrUnsupportedProvider},
		{"ftp", "ftp://example.com/album", "", "", ErrMalformedSource},
		{"garbage", "hello world", "", "", ErrMalformedSource},
		{"empty", "  ", "", "", ErrMalformedSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := d.Parse(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Provider != tt.provider || ref.ID != tt.id {
				t.Errorf("got %s/%s, want %s/%s", ref.Provider, ref.ID, tt.provider, tt.id)
			}
		})
	}
}

func TestDetector_ParseOneDrive(t *testing.T) {
	link := "https://1drv.ms/f/s!AbCdEf?e=xyz"
	ref, err := Detector{}.Parse(link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ref.ID, "u!") {
		t.Fatalf("expected u! prefix, got %s", ref.ID)
	}
	if strings.ContainsAny(ref.ID, "=+/") {
		t.Errorf("share id must be unpadded base64url, got %s", ref.ID)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ref.ID, "u!"))
	if err != nil {
		t.Fatalf("decode share id: %v", err)
	}
	if string(decoded) != link {
		t.Errorf("decoded %q, want %q", decoded, link)
	}
}

func TestAuthError(t *testing.T) {
	err := error(&AuthError{Provider: "google_drive"})
	if err.Error() != "google_drive: no credentials available" {
		t.Errorf("unexpected message %q", err.Error())
	}

	var authErr *AuthError
	if !errors.As(error(&AuthError{Provider: "onedrive", Reason: "expired"}), &authErr) || authErr.Reason != "expired" {
		t.Error("expected errors.As to find AuthError")
	}
}
