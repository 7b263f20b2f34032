package azsearch

import "sync"

// indexLocks serializes mutations per index name, process-wide. Schema
// updates (index automation) and document uploads (indexing worker) share
// the same lock so they never interleave on one index.
var indexLocks sync.Map

// IndexLock returns the mutation lock for an index name.
func IndexLock(name string) *sync.Mutex {
	l, _ := indexLocks.LoadOrStore(name, &sync.Mutex{})
	return l.(*sync.Mutex)
}
