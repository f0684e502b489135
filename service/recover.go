package service

import (
	"github.com/cockroachdb/errors"

	"seqdb/domain/sequence"
)

// RowLoader reads the persisted catalog.
type RowLoader interface {
	Load() ([]sequence.Row, error)
}

/*
Recover rebuilds the directory from the durable catalog.

IMPORTANT:
- This MUST run before accepting traffic
- Session caches are not recovered; currval starts undefined
*/
func (e *Engine) Recover(src RowLoader) error {
	rows, err := src.Load()
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	if err := e.dir.Restore(rows); err != nil {
		return errors.Wrap(err, "restore directory")
	}
	e.log.WithField("sequences", len(rows)).Info("directory recovered")
	return nil
}
