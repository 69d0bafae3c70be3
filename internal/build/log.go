// Package build wires up process-wide logging: a console stream on
// stderr plus an optional rotating log file in the data directory. In
// stdio transport mode stdout belongs to the agent channel, so every
// log record stays off it.
package build

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the maximum number of rotated log files
	// kept on disk.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the maximum log file size in MB before
	// rotation occurs.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the log file name inside the log
	// directory.
	DefaultLogFilename = "planloopd.log"
)

// multiHandler fans slog records out to multiple underlying handlers,
// enabling dual-stream logging to the console and the log file.
type multiHandler struct {
	set []slog.Handler
}

// Enabled reports whether any underlying handler handles records at the
// given level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.set {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle dispatches the record to every handler that accepts its level.
func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.set {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// WithAttrs returns a handler set whose members carry the attributes.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	set := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		set[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{set: set}
}

// WithGroup returns a handler set whose members carry the group.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	set := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		set[i] = handler.WithGroup(name)
	}
	return &multiHandler{set: set}
}

var _ slog.Handler = (*multiHandler)(nil)

// RotatingLogWriter feeds a jrick/logrotate rotator through a pipe,
// giving the file stream size-bounded rotation with gzip compression of
// rotated files.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
}

// NewRotatingLogWriter opens the log file inside logDir (creating the
// directory if needed) and starts the rotator goroutine.
func NewRotatingLogWriter(logDir string) (*RotatingLogWriter, error) {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, DefaultLogFilename)

	// Rotator size is in KB.
	rot, err := rotator.New(
		logFile, int64(DefaultMaxLogFileSize*1024), false,
		DefaultMaxLogFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("create file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	go func() {
		// Errors go to stderr since the rotator itself is the log
		// destination.
		if err := rot.Run(pr); err != nil {
			fmt.Fprintf(os.Stderr, "log rotator stopped: %v\n", err)
		}
	}()

	return &RotatingLogWriter{pipe: pw, rotator: rot}, nil
}

// Write implements io.Writer.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	return r.pipe.Write(b)
}

// Close closes the pipe writer, signalling the rotator goroutine to
// flush and exit.
func (r *RotatingLogWriter) Close() error {
	return r.pipe.Close()
}

// NewLogger builds the process logger: a text handler on the console
// writer and, when fileWriter is non-nil, a second text handler on the
// rotating log file. The file stream always records debug level; the
// console level follows the verbose flag.
func NewLogger(console io.Writer, fileWriter io.Writer,
	verbose bool,
) *slog.Logger {

	consoleLevel := slog.LevelInfo
	if verbose {
		consoleLevel = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{
			Level: consoleLevel,
		}),
	}
	if fileWriter != nil {
		handlers = append(handlers,
			slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(&multiHandler{set: handlers})
}
