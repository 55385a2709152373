package source

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// Local lists image files of a directory. It is not recursive.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) List(ctx context.Context, ref Ref, _ Credential) ([]Image, error) {
	dir, err := filepath.Abs(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref.ID, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var images []Image
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !slices.Contains(imageExtensions, ext) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		images = append(images, Image{
			ID:       path,
			Name:     e.Name(),
			MimeType: mime.TypeByExtension(ext),
			Link:     "file://" + filepath.ToSlash(path),
		})
	}
	return images, nil
}

func (l *Local) Download(_ context.Context, img Image, _ Credential) ([]byte, error) {
	data, err := os.ReadFile(img.ID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", img.Name, err)
	}
	return data, nil
}
