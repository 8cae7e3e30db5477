package testutil

import (
	"testing"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"

	"github.com/play-co/NativeInspector/pkg/logger"
)

// NewLogForTesting returns a logger that only reports errors, unless tests run with -v.
// Must be called from a test (after the test flags are parsed).
func NewLogForTesting(name string) logr.Logger {
	log := logger.New(name)
	if testing.Verbose() {
		log.SetLevel(zapcore.DebugLevel)
	} else {
		log.SetLevel(zapcore.ErrorLevel)
	}
	return log.Logger.WithValues("Test", name)
}
