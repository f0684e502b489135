// Package sequence implements the numeric generators behind CREATE SEQUENCE,
// nextval and currval: the wraparound algorithm, the directory that owns
// every generator of a database, and the per-session currval cache.
//
// The package has no storage of its own. Directory changes are staged in a
// caller-supplied transaction through the Store interface and settle when
// that transaction commits or aborts.
package sequence
