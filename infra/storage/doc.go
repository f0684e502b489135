// Package storage holds versioned rows in fixed-size tile groups.
//
// Every slot carries an MVCC header (owner, begin/end commit ids and the
// last reader) that the transaction manager in infra/txn interprets. Rows
// are immutable byte slices published through atomic pointers, so readers
// never take a lock to look at a version. Slots whose versions no live
// transaction can see are recycled through a per-group free ring.
package storage
