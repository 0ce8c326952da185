// Package guard flips the application into test mode when blank-imported
// from a test file, so constructors skip external side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("BRASATO_TEST_MODE") == "" {
			_ = os.Setenv("BRASATO_TEST_MODE", "1")
		}
	})
}
