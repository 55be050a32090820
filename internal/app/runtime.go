package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv, when "1", makes the server and worker mains return before
// opening the users document or dialing Redis.
const TestModeEnv = "COLCON_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reads TestModeEnv on first use and caches the answer.
func InTestMode() bool {
	testMode.once.Do(loadTestMode)
	return testMode.on.Load()
}

// RefreshTestMode replaces the cached answer, for tests that change the
// environment with t.Setenv.
func RefreshTestMode() {
	testMode.once.Do(func() {})
	loadTestMode()
}

func loadTestMode() {
	testMode.on.Store(os.Getenv(TestModeEnv) == "1")
}
