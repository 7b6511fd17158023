package audit

import (
	"context"
	"database/sql"

	"github.com/kestrelsched/engine/db"
	"github.com/kestrelsched/engine/model"
)

// DBSink persists audit entries one at a time via db.InsertAuditEntry.
// A batch failing partway through still keeps the entries written so far.
type DBSink struct {
	Conn *sql.DB
}

func (s DBSink) WriteAuditEntries(ctx context.Context, entries []*model.AuditEntry) error {
	for _, e := range entries {
		if err := db.InsertAuditEntry(ctx, s.Conn, e); err != nil {
			return err
		}
	}
	return nil
}
