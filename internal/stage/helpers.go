package stage

import (
	"os"

	"layerforge/internal/services"
)

// RequireFile returns a services.ErrNotFound when path is missing, naming the
// role the file plays so the user knows which layer to rerun.
func RequireFile(layer, role, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, layer, "prepare",
				role+" "+path+" does not exist; run the earlier layers first", nil)
		}
		return services.Wrap(services.ErrExternalTool, layer, "prepare", "Cannot stat "+role, err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, layer, "prepare", role+" "+path+" is a directory", nil)
	}
	return nil
}
