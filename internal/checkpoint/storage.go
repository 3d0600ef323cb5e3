// internal/checkpoint/storage.go
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ladybug/internal/logging"
)

// ErrUnsupportedCapture is returned for files that are not report captures.
var ErrUnsupportedCapture = errors.New("unsupported capture format")

const zstdExt = ".zst"

// Storage reads captured reports from a directory. Captures are JSON or
// YAML documents, optionally zstd compressed (report.json.zst).
type Storage struct {
	baseDir string
	name    string
	decoder *zstd.Decoder
	logger  *logging.Logger
}

// NewStorage creates a capture storage rooted at baseDir. The storage name
// is the directory's base name.
func NewStorage(baseDir string, logger *logging.Logger) (*Storage, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Storage{
		baseDir: baseDir,
		name:    filepath.Base(baseDir),
		decoder: decoder,
		logger:  logger.Named("storage"),
	}, nil
}

// Name returns the storage name reports are loaded under.
func (s *Storage) Name() string {
	return s.name
}

// Close releases the decoder.
func (s *Storage) Close() {
	s.decoder.Close()
}

// CaptureInfo describes a capture file without its checkpoints.
type CaptureInfo struct {
	File        string `json:"file"`
	StorageID   int    `json:"storage_id"`
	Name        string `json:"name"`
	Checkpoints int    `json:"checkpoints"`
}

// List returns every readable capture in the storage directory. Files that
// fail to parse are skipped and logged.
func (s *Storage) List(ctx context.Context) ([]CaptureInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []CaptureInfo
	for _, entry := range entries {
		if entry.IsDir() || !IsCapture(entry.Name()) {
			continue
		}
		report, err := s.Load(ctx, entry.Name())
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable capture", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		infos = append(infos, CaptureInfo{
			File:        entry.Name(),
			StorageID:   report.StorageID,
			Name:        report.Name,
			Checkpoints: len(report.Checkpoints),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].StorageID < infos[j].StorageID })
	return infos, nil
}

// Load reads the named capture from the storage directory.
func (s *Storage) Load(ctx context.Context, file string) (*Report, error) {
	return s.LoadFile(ctx, filepath.Join(s.baseDir, filepath.Base(file)))
}

// LoadFile reads a capture from any path. The report's storage name is set
// to this storage's name when the capture does not carry one.
func (s *Storage) LoadFile(ctx context.Context, path string) (*Report, error) {
	if !IsCapture(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedCapture)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}

	name := path
	if strings.HasSuffix(strings.ToLower(name), zstdExt) {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress capture: %w", err)
		}
		name = name[:len(name)-len(zstdExt)]
	}

	report := &Report{}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(report); err != nil {
			return nil, fmt.Errorf("decode json capture: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, report); err != nil {
			return nil, fmt.Errorf("decode yaml capture: %w", err)
		}
	}

	if report.StorageName == "" {
		report.StorageName = s.name
	}
	s.normalize(ctx, report, path)
	return report, nil
}

// normalize drops null entries, restores ascending index order and links
// the checkpoints to their report.
func (s *Storage) normalize(ctx context.Context, report *Report, path string) {
	report.Checkpoints = compact(report.Checkpoints)
	sorted := sort.SliceIsSorted(report.Checkpoints, func(i, j int) bool {
		return report.Checkpoints[i].Index < report.Checkpoints[j].Index
	})
	if !sorted {
		s.logger.Warn(ctx, "capture checkpoints out of index order, sorting",
			zap.String("file", path), zap.Int("storage_id", report.StorageID))
		sort.SliceStable(report.Checkpoints, func(i, j int) bool {
			return report.Checkpoints[i].Index < report.Checkpoints[j].Index
		})
	}
	for _, c := range report.Checkpoints {
		c.report = report
	}
}

func compact(cps []*Checkpoint) []*Checkpoint {
	out := make([]*Checkpoint, 0, len(cps))
	for _, c := range cps {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// IsCapture reports whether the file name has a capture extension.
func IsCapture(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(name), zstdExt)
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
