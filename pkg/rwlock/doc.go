// Package rwlock provides a reader-writer lock shared by independent
// processes. It is built only from named, bounded counting semaphores: no
// shared memory segment and no arbiter process.
//
// Every process opens the lock under the same name. The lock and its reader
// counter are backed by five semaphores:
//
//	<name>.Incoming          arrival gate; one entry attempt in flight at a time
//	<name>.Reader            guards the reader count and the 0<->1 transitions
//	<name>.Writer            held by a writer, or on behalf of all active readers
//	<name>.Counter           count of active readers, offset by one
//	<name>.Counter.Incoming  mutex serializing counter updates
//
// Writers keep the arrival gate for their whole critical section, and a
// waiting writer keeps it while it waits, so readers arriving after a writer
// cannot overtake it.
//
// Example usage:
//
//	l, err := rwlock.New("inventory", 5, 3*time.Second)
//	if err != nil {
//	  return err
//	}
//	defer l.Close()
//	if ok, err := l.TryEnterReadLock(); err == nil && ok {
//	  // read the shared resource
//	  _ = l.ExitReadLock()
//	}
package rwlock
