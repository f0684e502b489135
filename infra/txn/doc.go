// Package txn implements timestamp-ordering concurrency control over the
// versioned slots of infra/storage.
//
// A transaction reads at the last committed commit id. Writers take
// ownership of the newest version of a row; readers stamp the version with
// their commit id so a later writer whose snapshot predates the read backs
// off. Commit assigns the next commit id and publishes the write set in one
// critical section.
package txn
