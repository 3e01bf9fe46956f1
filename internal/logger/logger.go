package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Options configures a Logger created with New.
type Options struct {
	// Dir receives one JSON log file per day. Empty disables file output.
	Dir     string
	Service string
	Level   LogLevel
}

type Logger struct {
	mu           sync.Mutex
	out          io.Writer
	logFile      *os.File
	level        LogLevel
	colorEnabled bool
	exit         func(int)
}

// New creates a logger that prints coloured lines to stdout and, when
// opts.Dir is set, appends JSON entries to {Dir}/{Service}-{date}.log.
func New(opts Options) (*Logger, error) {
	l := &Logger{
		out:          color.Output,
		level:        opts.Level,
		colorEnabled: !color.NoColor,
		exit:         os.Exit,
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		service := opts.Service
		if service == "" {
			service = "ticket-service"
		}
		logFileName := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", service, time.Now().Format("2006-01-02")))

		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.logFile = logFile
		l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	}

	return l, nil
}

// NewWithWriter creates a logger that writes plain, uncoloured lines to w
// and keeps no log file.
func NewWithWriter(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		out:   w,
		level: level,
		exit:  os.Exit,
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(3)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelToString(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, l.formatTerminalOutput(entry))

	if l.logFile != nil {
		l.logFile.WriteString(formatJSONOutput(entry) + "\n")
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	if !l.colorEnabled {
		if entry.File != "" && entry.Line > 0 {
			return fmt.Sprintf("%s %-5s [%-10s] %s (%s:%d)\n", timestamp, entry.Level, entry.Category, entry.Message, entry.File, entry.Line)
		}
		return fmt.Sprintf("%s %-5s [%-10s] %s\n", timestamp, entry.Level, entry.Category, entry.Message)
	}

	var levelColor, categoryColor *color.Color

	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case "ERROR", "FATAL":
		levelColor = color.New(color.FgRed, color.Bold)
		categoryColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgWhite)
		categoryColor = color.New(color.FgWhite, color.Bold)
	}

	timeStr := color.New(color.FgBlue).Sprintf("%s", timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}

	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func formatJSONOutput(entry LogEntry) string {
	jsonBytes, _ := json.Marshal(entry)
	return string(jsonBytes)
}

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Public logging methods
func (l *Logger) Debug(category, message string) {
	l.emit(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.emit(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.emit(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.emit(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.emit(FATAL, category, message)
	l.exit(1)
}

// emit keeps the caller depth identical for every public method.
func (l *Logger) emit(level LogLevel, category, message string) {
	l.log(level, category, message)
}

// Specialized logging methods for different components
func (l *Logger) LogTicket(action, ticketID, message string) {
	l.emit(INFO, "TICKET", fmt.Sprintf("[%s] %s - %s", action, ticketID, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	level := INFO
	if status >= 500 {
		level = ERROR
	}
	l.emit(level, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.emit(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogCache(action, key, message string) {
	l.emit(DEBUG, "CACHE", fmt.Sprintf("[%s] %s - %s", action, key, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.emit(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.emit(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.mu.Lock()
		l.logFile.Close()
		l.logFile = nil
		l.mu.Unlock()
	}
}
