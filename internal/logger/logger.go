package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
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

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Options controls where a Logger writes. The zero value writes colored lines
// to stdout and no JSON file.
type Options struct {
	// Dir is the directory for the daily JSON log file. Empty disables it.
	Dir string
	// Prefix names the log file: <Dir>/<Prefix>-<date>.log
	Prefix string
	// Terminal receives the colored output. Nil means os.Stdout.
	Terminal io.Writer
	// MinLevel drops entries below this level.
	MinLevel LogLevel
	NoColor  bool
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	logFile  *os.File
	minLevel LogLevel
	noColor  bool
}

// NewLogger creates the service logger writing to stdout and logs/box-office-<date>.log.
func NewLogger() *Logger {
	l, err := New(Options{Dir: "logs", Prefix: "box-office"})
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	return l
}

func New(opts Options) (*Logger, error) {
	terminal := opts.Terminal
	if terminal == nil {
		terminal = os.Stdout
	}

	l := &Logger{
		terminal: terminal,
		minLevel: opts.MinLevel,
		noColor:  opts.NoColor,
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		prefix := opts.Prefix
		if prefix == "" {
			prefix = "service"
		}
		name := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", prefix, time.Now().Format("2006-01-02")))

		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.logFile = f
		l.Info("LOGGER", fmt.Sprintf("Log file: %s", name))
	}

	return l, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{terminal: io.Discard, minLevel: DEBUG, noColor: true}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelString(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.terminal, l.formatTerminalOutput(entry))

	if l.logFile != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(b, '\n'))
		}
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	clock := entry.Timestamp[11:19]

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor, categoryColor = color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor, categoryColor = color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor, categoryColor = color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)
	case "ERROR", "FATAL":
		levelColor, categoryColor = color.New(color.FgRed), color.New(color.FgRed, color.Bold)
	default:
		levelColor, categoryColor = color.New(color.FgWhite), color.New(color.FgWhite, color.Bold)
	}

	fileColor := color.New(color.FgMagenta)
	timeColor := color.New(color.FgBlue)
	if l.noColor {
		for _, c := range []*color.Color{levelColor, categoryColor, fileColor, timeColor} {
			c.DisableColor()
		}
	}

	out := fmt.Sprintf("%s %s %s %s",
		timeColor.Sprint(clock),
		levelColor.Sprintf("%-5s", entry.Level),
		categoryColor.Sprintf("[%-10s]", entry.Category),
		entry.Message,
	)
	if entry.File != "" && entry.Line > 0 {
		out += fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return out + "\n"
}

func levelString(level LogLevel) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "INFO"
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.Close()
	os.Exit(1)
}

// Specialized logging methods for different components
func (l *Logger) LogSale(stage, transID, message string) {
	l.Info("WEBHOOK", fmt.Sprintf("[%s] %s - %s", stage, transID, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.Info("API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogCache(action, key string) {
	l.Debug("CACHE", fmt.Sprintf("[%s] %s", action, key))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
}
