// Package logging builds the structured logger shared by the commands: a
// console handler plus an optional JSON log file, fanned out with slog-multi.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Manu343726/schedcheck/pkg/utils"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

var ErrOptions = errors.New("invalid logging options")

// Format of the console handler
type Format string

const (
	// FormatAuto logs text on terminals and JSON otherwise
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures the logger
type Options struct {
	Level  string `mapstructure:"level"`
	Format Format `mapstructure:"format"`
	// File, if set, receives every record as JSON regardless of Format
	File string `mapstructure:"file"`
}

// Logger is a slog logger owning its log file
type Logger struct {
	*slog.Logger

	file *os.File
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel parses "debug", "info", "warn" or "error"
func ParseLevel(level string) (slog.Level, error) {
	var result slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := result.UnmarshalText([]byte(level)); err != nil {
		return result, utils.MakeError(ErrOptions, "log level '%s'", level)
	}
	return result, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// New creates a logger writing to console, usually os.Stderr
func New(console io.Writer, options Options) (*Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	format := Format(strings.ToLower(string(options.Format)))
	if format == "" || format == FormatAuto {
		if isTerminal(console) {
			format = FormatText
		} else {
			format = FormatJSON
		}
	}

	var handlers []slog.Handler
	switch format {
	case FormatText:
		handlers = append(handlers, slog.NewTextHandler(console, handlerOptions))
	case FormatJSON:
		handlers = append(handlers, slog.NewJSONHandler(console, handlerOptions))
	default:
		return nil, utils.MakeError(ErrOptions, "log format '%s'", options.Format)
	}

	logger := &Logger{}
	if options.File != "" {
		file, err := os.OpenFile(options.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		logger.file = file
		handlers = append(handlers, slog.NewJSONHandler(file, handlerOptions))
	}

	logger.Logger = slog.New(slogmulti.Fanout(handlers...))
	return logger, nil
}

// Discard returns a logger dropping every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
