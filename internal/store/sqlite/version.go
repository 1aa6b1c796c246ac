package sqlite

import "time"

// nextConfigVersion implements the teacher's "record update broadcasts
// version" design note as one helper that the Create and Update methods of
// the versioned entities (users, hosts, workers) call, rather than each
// computing its own timestamp. config_version is a monotonic timestamp-with-tiebreak:
// UnixNano is already monotonic enough for single-writer SQLite, and ties
// are impossible because all writes are serialized through one connection.
func nextConfigVersion() int64 {
	return time.Now().UTC().UnixNano()
}
