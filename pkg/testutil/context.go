package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// Overrides the timeout of every test context, in minutes. Handy when stepping through tests in a debugger.
const testContextTimeoutEnvVar = "TEST_CONTEXT_TIMEOUT"

// GetTestContext returns a context that expires after testTimeout or at the test binary deadline,
// whichever comes first. A zero testTimeout means "only the binary deadline, if any".
func GetTestContext(t *testing.T, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	if override, found := os.LookupEnv(testContextTimeoutEnvVar); found {
		minutes, err := strconv.ParseUint(override, 10, 16)
		if err != nil {
			panic(fmt.Sprintf("%s value '%s' is invalid: %s", testContextTimeoutEnvVar, override, err.Error()))
		}
		return context.WithTimeout(context.Background(), time.Duration(minutes)*time.Minute)
	}

	var deadline time.Time
	if testTimeout != 0 {
		deadline = time.Now().Add(testTimeout)
	}
	if binaryDeadline, found := t.Deadline(); found && (deadline.IsZero() || binaryDeadline.Before(deadline)) {
		deadline = binaryDeadline
	}

	if deadline.IsZero() {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), deadline)
}
