// Package guard marks the process as running under test when linked in.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("COLCON_TEST_MODE") == "" {
			_ = os.Setenv("COLCON_TEST_MODE", "1")
		}
	})
}
