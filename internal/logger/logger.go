package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelSuccess LogLevel = "SUCCESS"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
	LevelDebug   LogLevel = "DEBUG"
	LevelNotice  LogLevel = "NOTICE"
)

var (
	mu sync.Mutex

	// Console output, colored when it is a terminal.
	out io.Writer = color.Output

	errorLogger  *stdlog.Logger
	errorLogFile *os.File

	// Separate dispatch logger that doesn't write to the error log
	dispatchLogger  *stdlog.Logger
	dispatchLogFile *os.File

	debugEnabled = true
)

// Setup opens error.log and dispatch.log inside dataDir. Without it the
// logger only writes to the console.
func Setup(dataDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logPath := filepath.Join(dataDir, "error.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log file: %w", err)
	}
	errorLogFile = f
	errorLogger = stdlog.New(errorLogFile, "", 0)

	dispatchLogPath := filepath.Join(dataDir, "dispatch.log")
	f, err = os.OpenFile(dispatchLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open dispatch log file: %w", err)
	}
	dispatchLogFile = f
	dispatchLogger = stdlog.New(dispatchLogFile, "", 0)

	return nil
}

// SetOutput redirects console output, mostly for tests and quiet mode.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetDebug toggles DEBUG lines on the console. Files are unaffected.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugEnabled = enabled
}

// CloseLogFile should be called during shutdown to properly close all log files
func CloseLogFile() {
	mu.Lock()
	defer mu.Unlock()

	if errorLogFile != nil {
		errorLogFile.Close()
		errorLogFile = nil
		errorLogger = nil
	}

	if dispatchLogFile != nil {
		dispatchLogFile.Close()
		dispatchLogFile = nil
		dispatchLogger = nil
	}
}

var colorMap = map[string]func(a ...interface{}) string{
	string(LevelInfo):    color.New(color.FgBlue).SprintFunc(),
	string(LevelSuccess): color.New(color.FgGreen).SprintFunc(),
	string(LevelWarning): color.New(color.FgYellow).SprintFunc(),
	string(LevelError):   color.New(color.FgRed).SprintFunc(),
	string(LevelDebug):   color.New(color.FgCyan).SprintFunc(),
	string(LevelNotice):  color.New(color.FgMagenta).SprintFunc(),

	"blue":    color.New(color.FgBlue).SprintFunc(),
	"green":   color.New(color.FgGreen).SprintFunc(),
	"yellow":  color.New(color.FgYellow).SprintFunc(),
	"red":     color.New(color.FgRed).SprintFunc(),
	"cyan":    color.New(color.FgCyan).SprintFunc(),
	"magenta": color.New(color.FgMagenta).SprintFunc(),
	"white":   color.New(color.FgWhite).SprintFunc(),

	"bright_blue":  color.New(color.FgHiBlue, color.Bold).SprintFunc(),
	"bright_green": color.New(color.FgHiGreen, color.Bold).SprintFunc(),
	"bright_white": color.New(color.FgHiWhite).SprintFunc(),
	"bright_black": color.New(color.FgHiBlack).SprintFunc(),
}

func GetColorFunc(colorName string) func(a ...interface{}) string {
	if fn, ok := colorMap[colorName]; ok {
		return fn
	}
	return colorMap["white"]
}

func logMessage(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	mu.Lock()
	defer mu.Unlock()

	if level != LevelDebug || debugEnabled {
		colorFunc := GetColorFunc(string(level))
		fmt.Fprintln(out, colorFunc(fmt.Sprintf("[%s] ", level))+message)
	}

	// Only errors and warnings go to error.log
	if level == LevelError || level == LevelWarning {
		if errorLogger != nil {
			errorLogger.Printf("[%s] %s: %s", level, timestamp, message)
		}
	}
}

func Infof(format string, args ...interface{}) {
	logMessage(LevelInfo, format, args...)
}

func Successf(format string, args ...interface{}) {
	logMessage(LevelSuccess, format, args...)
}

func Warnf(format string, args ...interface{}) {
	logMessage(LevelWarning, format, args...)
}

func Errorf(format string, args ...interface{}) {
	logMessage(LevelError, format, args...)
}

func Debugf(format string, args ...interface{}) {
	logMessage(LevelDebug, format, args...)
}

func Noticef(format string, args ...interface{}) {
	logMessage(LevelNotice, format, args...)
}

// DispatchDebugf logs dispatcher and model traffic to dispatch.log instead of
// error.log, so the error log stays readable.
func DispatchDebugf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	mu.Lock()
	defer mu.Unlock()

	if debugEnabled {
		colorFunc := GetColorFunc(string(LevelDebug))
		fmt.Fprintln(out, colorFunc("[DISPATCH] ")+message)
	}

	if dispatchLogger != nil {
		dispatchLogger.Printf("[DEBUG] %s: %s", timestamp, message)
	}
}
