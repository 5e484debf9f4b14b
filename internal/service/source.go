package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// SourceService manages the GeoJSON files layers are imported from.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

var sourceExts = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		fileType, ok := sourceExts[ext]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     humanize.IBytes(uint64(info.Size())),
			FileType: fileType,
		})
	}

	return files, nil
}

// Path resolves a source file name inside the sources directory.
func (s *SourceService) Path(filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if _, ok := sourceExts[strings.ToLower(filepath.Ext(filename))]; !ok {
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	path := filepath.Join(s.sourcesDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file not found: %s", filename)
	}
	return path, nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}
