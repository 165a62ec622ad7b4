package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init routes the standard logger to stderr (when console is set) and to an
// append-mode file at logPath (when not empty). With neither, output is discarded.
func Init(logPath string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if console {
		writers = append(writers, os.Stderr)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogIngest records one ingested document.
func LogIngest(docID, source string, chunks int, took time.Duration) {
	log.Println(buildMessage("INGEST",
		"doc", docID,
		"source", source,
		"chunks", chunks,
		"took", took.Round(time.Millisecond),
	))
}

// LogQuery records one search.
func LogQuery(question string, topK, hits int, took time.Duration) {
	log.Println(buildMessage("QUERY",
		"q", question,
		"top_k", topK,
		"hits", hits,
		"took", took.Round(time.Millisecond),
	))
}

func buildMessage(kind string, kv ...any) string {
	parts := []string{fmt.Sprintf("[%s]", strings.ToUpper(strings.TrimSpace(kind)))}
	for i := 0; i+1 < len(kv); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%s", kv[i], formatValue(kv[i+1])))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return `""`
		}
		if strings.ContainsAny(x, " \t\n\"") {
			return fmt.Sprintf("%q", x)
		}
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
