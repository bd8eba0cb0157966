// Package screenshot manages capture storage for checkout sessions:
// naming, rotation and thumbnail generation for the HTML report.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// Config holds screenshot storage configuration.
type Config struct {
	// Enabled toggles capture. The manager itself always saves when
	// asked; callers consult this before capturing.
	Enabled bool

	// StorageDir is the directory screenshots are written to.
	// Created on manager construction if missing.
	StorageDir string

	// ImageFormat is "png" or "jpeg". Defaults to "png".
	ImageFormat string

	// Quality is the JPEG quality (1-100). Defaults to 90.
	Quality int

	// MaxScreenshots bounds how many files are kept in StorageDir.
	// Oldest files are pruned first. Zero means unlimited.
	MaxScreenshots int
}

// Manager stores screenshots on disk.
type Manager struct {
	config Config
}

// NewManager creates a screenshot manager, applying defaults and
// creating the storage directory.
func NewManager(cfg *Config) *Manager {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ImageFormat == "" {
		c.ImageFormat = "png"
	}
	if c.Quality == 0 {
		c.Quality = 90
	}
	if c.StorageDir != "" {
		// Best effort; Save reports the error if the directory is unusable.
		_ = os.MkdirAll(c.StorageDir, 0o755)
	}

	return &Manager{config: c}
}

// Config returns a copy of the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Save writes PNG screenshot data under a sanitized, timestamped name
// and returns the file path.
func (m *Manager) Save(data []byte, name string) (string, error) {
	if m.config.StorageDir == "" {
		return "", fmt.Errorf("screenshot storage directory not configured")
	}
	if err := os.MkdirAll(m.config.StorageDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%d.%s", sanitizeFilename(name), time.Now().UnixNano(), m.config.ImageFormat)
	path := filepath.Join(m.config.StorageDir, filename)

	out := data
	if m.config.ImageFormat == "jpeg" {
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to decode screenshot: %w", err)
		}
		out, err = encodeJPEG(img, m.config.Quality)
		if err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	if err := m.prune(); err != nil {
		return path, err
	}
	return path, nil
}

// Thumbnail downscales PNG screenshot data to maxWidth and compresses
// it to JPEG. Images already narrower than maxWidth are only
// re-encoded. A 1280x800 PNG (~500KB) becomes a 480-wide JPEG of a few
// kilobytes, small enough to inline into the report.
func (m *Manager) Thumbnail(data []byte, maxWidth, quality int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = 480
	}
	if quality <= 0 {
		quality = 60
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	if origWidth <= maxWidth {
		return encodeJPEG(img, quality)
	}

	newWidth := maxWidth
	newHeight := (origHeight * maxWidth) / origWidth

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	return encodeJPEG(resized, quality)
}

// List returns the paths of all stored screenshots.
func (m *Manager) List() ([]string, error) {
	if m.config.StorageDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read screenshot directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isScreenshotFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(m.config.StorageDir, e.Name()))
	}
	return paths, nil
}

// Clear removes all stored screenshots, leaving other files in the
// directory untouched.
func (m *Manager) Clear() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove screenshot: %w", err)
		}
	}
	return nil
}

// prune enforces MaxScreenshots by removing the oldest files.
func (m *Manager) prune() error {
	if m.config.MaxScreenshots <= 0 {
		return nil
	}

	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		return fmt.Errorf("failed to read screenshot directory: %w", err)
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !isScreenshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}

	if len(files) <= m.config.MaxScreenshots {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:len(files)-m.config.MaxScreenshots] {
		if err := os.Remove(filepath.Join(m.config.StorageDir, f.name)); err != nil {
			return fmt.Errorf("failed to prune screenshot: %w", err)
		}
	}
	return nil
}

// encodeJPEG converts an image to JPEG with the specified quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeFilename strips characters that are unsafe in file names,
// converting spaces to underscores and capping the length at 50.
func sanitizeFilename(name string) string {
	if name == "" {
		return "screenshot"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	s := b.String()
	if s == "" {
		return "screenshot"
	}
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// isScreenshotFile reports whether the name looks like a stored capture.
func isScreenshotFile(name string) bool {
	return strings.HasSuffix(name, ".png") ||
		strings.HasSuffix(name, ".jpg") ||
		strings.HasSuffix(name, ".jpeg")
}
