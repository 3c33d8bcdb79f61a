package policy

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
)

var _ persist.Adapter = (*SQLAdapter)(nil)

// SQLAdapter persists casbin rules in the casbin_rule table using the
// six-slot (ptype, v0..v5) layout.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter wraps a database handle as a casbin policy adapter.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func (a *SQLAdapter) LoadPolicy(m model.Model) error {
	rows, err := a.db.Query(`select ptype, v0, v1, v2, v3, v4, v5 from casbin_rule`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ptype string
			vals  [6]sql.NullString
		)
		if err := rows.Scan(&ptype, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5]); err != nil {
			return err
		}
		line := []string{ptype}
		for _, v := range vals {
			if !v.Valid || v.String == "" {
				break
			}
			line = append(line, v.String)
		}
		if len(line) == 1 {
			continue
		}
		persist.LoadPolicyArray(line, m)
	}
	return rows.Err()
}

// SavePolicy rewrites the whole table from the in-memory model in one
// transaction, mirroring the reload-from-scratch semantics of the admin API.
func (a *SQLAdapter) SavePolicy(m model.Model) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`delete from casbin_rule`); err != nil {
		return err
	}
	for _, sec := range []string{"p", "g"} {
		for ptype, ast := range m[sec] {
			for _, rule := range ast.Policy {
				if err := insertRule(tx, ptype, rule); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

func insertRule(tx *sql.Tx, ptype string, rule []string) error {
	vals := make([]any, 7)
	vals[0] = ptype
	for i := 0; i < 6; i++ {
		if i < len(rule) {
			vals[i+1] = rule[i]
		} else {
			vals[i+1] = nil
		}
	}
	_, err := tx.Exec(`
		insert into casbin_rule (ptype, v0, v1, v2, v3, v4, v5)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, vals...)
	return err
}

func (a *SQLAdapter) AddPolicy(_ string, ptype string, rule []string) error {
	vals := make([]any, 7)
	vals[0] = ptype
	for i := 0; i < 6; i++ {
		if i < len(rule) {
			vals[i+1] = rule[i]
		} else {
			vals[i+1] = nil
		}
	}
	_, err := a.db.Exec(`
		insert into casbin_rule (ptype, v0, v1, v2, v3, v4, v5)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, vals...)
	return err
}

func (a *SQLAdapter) RemovePolicy(_ string, ptype string, rule []string) error {
	where := []string{"ptype = $1"}
	args := []any{ptype}
	for i, v := range rule {
		args = append(args, v)
		where = append(where, fmt.Sprintf("v%d = $%d", i, len(args)))
	}
	_, err := a.db.Exec(`delete from casbin_rule where `+strings.Join(where, " and "), args...)
	return err
}

func (a *SQLAdapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	where := []string{"ptype = $1"}
	args := []any{ptype}
	for i, v := range fieldValues {
		if v == "" {
			continue
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("v%d = $%d", fieldIndex+i, len(args)))
	}
	_, err := a.db.Exec(`delete from casbin_rule where `+strings.Join(where, " and "), args...)
	return err
}
