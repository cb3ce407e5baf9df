package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PATHSHALA_TEST_MODE") == "" {
			_ = os.Setenv("PATHSHALA_TEST_MODE", "1")
		}
	})
}
