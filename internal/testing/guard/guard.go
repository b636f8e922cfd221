// Package guard forces test mode for packages that import it, keeping
// runtime startup paths inert under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SWEETHOME_TEST_MODE") == "" {
			_ = os.Setenv("SWEETHOME_TEST_MODE", "1")
		}
	})
}
