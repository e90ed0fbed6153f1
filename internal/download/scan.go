package download

import (
	"path/filepath"

	"github.com/fiverse/ytdlp_api/internal/media"
)

// scanDir searches dir for an artifact of the given id and kind. The
// orchestrator writes the first artifact with the id suffixed and may later
// rename it to drop the id, so both naming states are checked, per
// extension in the kind's preference order. filepath.Glob returns matches
// sorted, so the pick among several candidates is deterministic.
func scanDir(dir, id string, kind media.Kind) (string, bool) {
	for _, ext := range kind.Extensions() {
		for _, pattern := range []string{"*__" + id + "." + ext, id + "*." + ext} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil || len(matches) == 0 {
				continue
			}

			return filepath.Base(matches[0]), true
		}
	}

	return "", false
}
