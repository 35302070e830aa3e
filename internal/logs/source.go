package logs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultTailLines bounds how many lines one change notification may deliver
const DefaultTailLines = 100

// Source is a push-driven producer of raw log lines
type Source interface {
	// Label names the source; unstructured lines are attributed to it
	Label() string
	// Run delivers batches of complete lines until ctx is done
	Run(ctx context.Context, emit func(lines []string)) error
}

// FileSource tails a log file, reading only what was appended since the last change
type FileSource struct {
	path      string
	label     string
	tailLines int
	logger    *zap.Logger

	offset  int64
	partial []byte
}

// NewFileSource creates a file source. An empty label uses the file name without extension.
func NewFileSource(path, label string, tailLines int, logger *zap.Logger) *FileSource {
	if label == "" {
		base := filepath.Base(path)
		label = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if tailLines <= 0 {
		tailLines = DefaultTailLines
	}
	return &FileSource{
		path:      filepath.Clean(path),
		label:     label,
		tailLines: tailLines,
		logger:    logger.Named("file_source").With(zap.String("path", path)),
	}
}

// Label implements Source
func (s *FileSource) Label() string { return s.label }

// Run implements Source. The parent directory is watched so the file may be
// created, rotated or truncated while the source runs.
func (s *FileSource) Run(ctx context.Context, emit func(lines []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	s.logger.Info("Started watching log file")
	s.readDelta(emit)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				s.readDelta(emit)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				s.offset = 0
				s.partial = nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// readDelta emits the complete lines appended since the last read, keeping at most tailLines
func (s *FileSource) readDelta(emit func(lines []string)) {
	lines, err := s.readNew()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read log file", zap.Error(err))
		}
		return
	}
	if len(lines) == 0 {
		return
	}
	if len(lines) > s.tailLines {
		lines = lines[len(lines)-s.tailLines:]
	}
	emit(lines)
}

func (s *FileSource) readNew() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size < s.offset {
		// truncated in place
		s.offset = 0
		s.partial = nil
	}
	if size == s.offset {
		return nil, nil
	}

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(io.LimitReader(f, size-s.offset))
	if err != nil {
		return nil, err
	}
	s.offset += int64(len(chunk))

	data := append(s.partial, chunk...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		s.partial = data
		return nil, nil
	}
	s.partial = append([]byte(nil), data[last+1:]...)

	var lines []string
	for _, line := range strings.Split(string(data[:last]), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
