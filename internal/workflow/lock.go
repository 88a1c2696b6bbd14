package workflow

import (
	"fmt"

	"github.com/gofrs/flock"

	"layerforge/internal/services"
)

// acquireLock takes the work-directory lock so two runs never write the same
// artifacts. The returned function releases it.
func acquireLock(path string) (func() error, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire work directory lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "workflow", "lock",
			"Another run is using this work directory ("+path+")", nil)
	}
	return lock.Unlock, nil
}
