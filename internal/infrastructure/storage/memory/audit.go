package memory

import (
	"context"

	"docflow/internal/core/id"
	"docflow/internal/domain/audit"
)

// AuditLog implements audit.Recorder.
type AuditLog struct{ s *Store }

var _ audit.Recorder = AuditLog{}

// Audit returns the audit log.
func (s *Store) Audit() AuditLog { return AuditLog{s} }

func (a AuditLog) Record(ctx context.Context, entry audit.Entry) error {
	return a.s.do(ctx, func(st *state) error {
		st.audit = append(st.audit, entry)
		return nil
	})
}

// History returns entries for an entity, newest first.
func (a AuditLog) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	var out []audit.Entry
	err := a.s.do(ctx, func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if e.EntityType != entityType || e.EntityID != entityID {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}
