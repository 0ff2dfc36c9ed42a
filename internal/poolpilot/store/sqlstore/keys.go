package sqlstore

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// maxKeysPerStatement keeps composite predicates (three binds per key)
// well under SQLite's default limit of 999 bound variables.
const maxKeysPerStatement = 100

// keyColumns lists the identity columns for a key mode.
func keyColumns(mode types.KeyMode) []string {
	if mode == types.KeyModeComposite {
		return []string{"system_id", "snapshot_ts_ms", "alert_type"}
	}
	return []string{"id"}
}

// keyPredicate matches exactly keys.  Single-column identities use IN;
// the composite form is an OR of per-key conjunctions in keyColumns order.
func keyPredicate(mode types.KeyMode, keys []types.AlertKey) sq.Sqlizer {
	if mode == types.KeyModeComposite {
		or := make(sq.Or, 0, len(keys))
		for _, k := range keys {
			or = append(or, sq.And{
				sq.Eq{"system_id": k.SystemID},
				sq.Eq{"snapshot_ts_ms": k.SnapshotAt.UTC().UnixMilli()},
				sq.Eq{"alert_type": k.AlertType},
			})
		}
		return or
	}

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return sq.Eq{"id": ids}
}

// chunkKeys splits keys into slices of at most size elements.
func chunkKeys(keys []types.AlertKey, size int) [][]types.AlertKey {
	if size <= 0 {
		size = maxKeysPerStatement
	}
	var out [][]types.AlertKey
	for len(keys) > 0 {
		n := min(size, len(keys))
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}
