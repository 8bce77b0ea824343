package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

const debugEnv = "REELSHARE_DEBUG"

// Logger wraps charmbracelet/log so callers share one configured instance.
type Logger struct {
	*log.Logger
}

var (
	logger *Logger
	once   sync.Once
)

// CreateLogger sets up the process logger. Calling it more than once is a no-op.
func CreateLogger() {
	once.Do(func() {
		base := log.New(os.Stderr)
		if strings.EqualFold(os.Getenv(debugEnv), "1") {
			base = log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				Prefix:          "reelshare",
			})
			base.SetLevel(log.DebugLevel)
		} else {
			base.SetReportTimestamp(true)
			base.SetLevel(log.InfoLevel)
		}
		logger = &Logger{Logger: base}
	})
}

func ensureInitialized() {
	CreateLogger()
}

// Debug logs debug messages when REELSHARE_DEBUG=1.
func Debug(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Debug(msg, keyvals...)
}

func Info(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Info(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Error(msg, keyvals...)
}
