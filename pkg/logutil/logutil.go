package logutil

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
)

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// Configure sets the level and formatter of the process-wide charm logger.
// format is one of text, json or logfmt.
func Configure(levelRaw, format string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	formatter, err := parseFormatter(format)
	if err != nil {
		return err
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetReportTimestamp(true)
	log.SetOutput(output)
	return nil
}

func ParseLevel(levelRaw string) (log.Level, error) {
	levelRaw = strings.ToLower(strings.TrimSpace(levelRaw))
	switch levelRaw {
	case "":
		return log.InfoLevel, nil
	case "trace", "trac":
		// No trace level in charm; debug is the most verbose.
		return log.DebugLevel, nil
	case "warning":
		return log.WarnLevel, nil
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
	return level, nil
}

func parseFormatter(format string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("invalid log format %q", format)
	}
}

// SetOutput redirects the charm logger, mostly for tests.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	log.SetOutput(w)
}

// StdLogger adapts the charm logger for APIs that want a *log.Logger, such as
// http.Server.ErrorLog and the chi request logger.
func StdLogger(level log.Level) *stdlog.Logger {
	return log.Default().StandardLog(log.StandardLogOptions{ForceLevel: level})
}
