package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/RoleBridge/internal/models"
)

func encodeBinds(binds []models.GuildBind) ([]byte, error) {
	raw, err := json.Marshal(binds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binds: %w", err)
	}
	return raw, nil
}

func decodeBinds(guildID string, raw []byte) ([]models.GuildBind, error) {
	var binds []models.GuildBind
	if err := json.Unmarshal(raw, &binds); err != nil {
		return nil, fmt.Errorf("failed to decode binds for guild %s: %w", guildID, err)
	}
	return binds, nil
}

// rowsAffected returns the affected row count, or 0 when the driver cannot
// report it.
func rowsAffected(r sql.Result) int64 {
	n, err := r.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
