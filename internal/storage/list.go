package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// ListBuilds returns a lightweight list of builds with counts, newest first.
func (db *DB) ListBuilds(limit, offset int) ([]BuildRow, error) {
	const q = `
		SELECT b.id, b.started_at, b.source, b.ir_version, b.pages, b.bundles,
		       (SELECT COUNT(1) FROM rules r WHERE r.build_id = b.id) AS rules
		  FROM builds b
		 ORDER BY b.started_at DESC, b.id DESC
		 LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuildRow
	for rows.Next() {
		var br BuildRow
		var startedAtStr string
		if err := rows.Scan(&br.ID, &startedAtStr, &br.Source, &br.IRVersion, &br.Pages, &br.Bundles, &br.Rules); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAtStr); err == nil {
			br.StartedAt = t
		}
		out = append(out, br)
	}
	return out, rows.Err()
}

// ListRules returns the rule inventory of a build in documentation order.
// An empty namespace lists every namespace.
func (db *DB) ListRules(buildID, namespace string) ([]ir.RuleEntry, error) {
	const q = `
		SELECT rule_json
		  FROM rules
		 WHERE build_id = ?
		   AND (? = '' OR namespace = ?)
		 ORDER BY namespace, pos`
	rows, err := db.conn.Query(q, buildID, namespace, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ir.RuleEntry
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		var r ir.RuleEntry
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasBuild reports whether a build id is in the history.
func (db *DB) HasBuild(id string) (bool, error) {
	const q = `SELECT 1 FROM builds WHERE id = ? LIMIT 1`
	var one int
	err := db.conn.QueryRow(q, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
