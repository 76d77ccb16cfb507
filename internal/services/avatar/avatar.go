// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package avatar normalizes uploaded or default images into fixed-size
// assets under the public avatars directory.
package avatar

import (
	"context"
	"crypto/md5" //nolint:gosec // gravatar addressing, not a security context
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	// Decoders for the upload formats accepted by the pipeline.
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ErrUnsupportedImage is returned when an upload cannot be decoded as
// JPEG, PNG, or GIF.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Size is the edge length of a normalized avatar. Aspect ratio is not
// preserved, every asset comes out exactly Size×Size.
const Size = 250

// defaultBaseName is the source name used for the default avatar, giving
// the deterministic asset name {accountID}_default_avatar.jpg.
const defaultBaseName = "default_avatar.jpg"

// Store writes normalized avatar assets to a directory served as static files.
type Store struct {
	dir        string
	urlPrefix  string
	defaultURL string
	client     *http.Client
}

// NewStore creates a Store rooted at dir. defaultURL is the well-known
// location of the default avatar image fetched when a user uploads nothing.
func NewStore(dir, defaultURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating avatar directory: %w", err)
	}
	return &Store{
		dir:        dir,
		urlPrefix:  "/avatars",
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// FromUpload normalizes an uploaded image and returns the relative URL of
// the stored asset. On any failure nothing is linked: a partially written
// temp file is removed and no path is returned.
func (s *Store) FromUpload(accountID, originalName string, r io.Reader) (string, error) {
	return s.normalize(accountID, originalName, r)
}

// Default fetches the configured default image and normalizes it under the
// deterministic name {accountID}_default_avatar.jpg.
func (s *Store) Default(ctx context.Context, accountID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.defaultURL, nil)
	if err != nil {
		return "", fmt.Errorf("building default avatar request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching default avatar: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching default avatar: unexpected status %d", resp.StatusCode)
	}

	return s.normalize(accountID, defaultBaseName, resp.Body)
}

// normalize decodes, force-resizes to Size×Size, and writes the asset via a
// per-request temp file moved into place, so concurrent writes never mix
// and readers only ever see complete files.
func (s *Store) normalize(accountID, sourceName string, r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := jpeg.Encode(tmp, dst, nil); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("encoding avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("writing avatar: %w", err)
	}

	filename := accountID + "_" + sanitizeName(sourceName)
	if err := os.Rename(tmpName, filepath.Join(s.dir, filename)); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storing avatar: %w", err)
	}

	return path.Join(s.urlPrefix, filename), nil
}

// sanitizeName reduces a client-supplied filename to a safe base name.
// The pipeline always encodes JPEG, so the extension becomes .jpg.
func sanitizeName(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	stem = b.String()
	if stem == "" {
		stem = "avatar"
	}
	return stem + ".jpg"
}

// GravatarURL derives the registration-time avatar URL from an email address.
func GravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email)))) //nolint:gosec
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=identicon&s=%d", sum, Size)
}
