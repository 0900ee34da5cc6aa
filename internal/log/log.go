// Package log wraps github.com/paularlott/logger with the console/JSON
// dual-writer the daemon needs: every line also lands under
// {work_dir}/logs/text/YYYYMMDD.log (console format) and
// {work_dir}/logs/structured/YYYYMMDD.json (JSON lines), rotated by date.
package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paularlott/logger"
	logslog "github.com/paularlott/logger/slog"
)

var (
	mu            sync.Mutex
	defaultLogger logger.Logger
	fileSink      *dailyFileSink
)

func init() {
	defaultLogger = logslog.New(logslog.Config{
		Level:  "info",
		Format: "console",
		Writer: os.Stdout,
	})
}

// Configure replaces the default logger's level/format and, if workDir is
// non-empty, enables the dual text/structured file sink under workDir/logs.
func Configure(level, format, workDir string) {
	mu.Lock()
	defer mu.Unlock()

	defaultLogger = logslog.New(logslog.Config{
		Level:  level,
		Format: format,
		Writer: os.Stdout,
	})

	if workDir != "" {
		fileSink = &dailyFileSink{workDir: workDir}
	} else {
		fileSink = nil
	}
}

func Info(msg string, kv ...any) {
	defaultLogger.Info(msg, kv...)
	writeFileSink("INFO", msg, kv...)
}

func Warn(msg string, kv ...any) {
	defaultLogger.Warn(msg, kv...)
	writeFileSink("WARN", msg, kv...)
}

func Error(msg string, kv ...any) {
	defaultLogger.Error(msg, kv...)
	writeFileSink("ERROR", msg, kv...)
}

func Debug(msg string, kv ...any) {
	defaultLogger.Debug(msg, kv...)
	writeFileSink("DEBUG", msg, kv...)
}

func writeFileSink(level, msg string, kv ...any) {
	mu.Lock()
	sink := fileSink
	mu.Unlock()
	if sink == nil {
		return
	}
	sink.write(level, msg, kv...)
}

// dailyFileSink appends one line per log call to the date-stamped text and
// structured-JSON log files, rotating the destination file name at midnight.
type dailyFileSink struct {
	workDir string
	mu      sync.Mutex
}

func (s *dailyFileSink) write(level, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := time.Now().UTC().Format("20060102")
	now := time.Now().UTC().Format(time.RFC3339)

	textPath := filepath.Join(s.workDir, "logs", "text", day+".log")
	appendLine(textPath, fmt.Sprintf("%s [%s] %s %s\n", now, level, msg, formatKV(kv)))

	jsonPath := filepath.Join(s.workDir, "logs", "structured", day+".json")
	appendLine(jsonPath, encodeStructured(now, level, msg, kv))
}

func formatKV(kv []any) string {
	out := ""
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf("%v=%v ", kv[i], kv[i+1])
	}
	return out
}

func encodeStructured(ts, level, msg string, kv []any) string {
	fields := map[string]any{"ts": ts, "level": level, "msg": msg}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		fields[key] = kv[i+1]
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf(`{"ts":%q,"level":%q,"msg":%q}`+"\n", ts, level, msg)
	}
	return string(b) + "\n"
}

func appendLine(path, line string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line)
}
