// Package testing switches the process into test mode when imported by a
// test binary, so app.IsTestMode reports true before any config is loaded.
package testing

import (
	"os"
	"path/filepath"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("COLCON_TEST_MODE", "1")
		// Keep stray stores out of the working tree.
		if os.Getenv("STORE_PATH") == "" {
			_ = os.Setenv("STORE_PATH", filepath.Join(os.TempDir(), "colcon-test", "users.json"))
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
