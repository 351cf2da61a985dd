package databases

import (
	"encoding/json"

	"bioingest/internal/model"
)

// changelogJSON serializes a Changelog for storage in a jsonb column.
// Marshaling a nil/empty Changelog never fails, so the error is discarded.
func changelogJSON(c model.Changelog) []byte {
	if c == nil {
		c = model.Changelog{}
	}
	b, _ := json.Marshal(c)
	return b
}

func decodeChangelog(b []byte) model.Changelog {
	if len(b) == 0 {
		return nil
	}
	var c model.Changelog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil
	}
	return c
}
