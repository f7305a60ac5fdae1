// Package engine implements the bylines batch driver.
//
// A run discovers content records that have an author but no relation to
// that author's term, resolves each author, creates or reuses the author's
// term, and writes the relation. Records whose author no longer exists get a
// skip marker so later runs leave them alone.
//
// Run Flow:
//  1. Build the predicate; invalid parameters end the run before any I/O.
//  2. Count matching records once. The count bounds the run.
//  3. Page through matches in ascending id order with a last-seen-id cursor.
//  4. Resolve, write, and every ThrottleEvery records pause and release the
//     store's transient caches.
//  5. Stop as soon as the processed count reaches the initial count.
//  6. Refresh record counts and descriptions of every author term touched.
//
// A run is single-threaded. Re-running is always safe: processed records drop
// out of the predicate, and every write is create-if-absent.
//
// Cancellation is checked between records. A record in flight finishes and
// relations already written stand. Term refresh runs even after an
// interrupt.
package engine
