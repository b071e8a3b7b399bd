// Package semaphore provides named, bounded counting semaphores that several
// processes can open under the same name.
//
// Two backends implement Opener:
//
//   - SysV: System V kernel semaphores (Linux amd64/arm64). Objects outlive
//     the processes that opened them until removed with SysV.Remove.
//   - Memory: a process-wide registry. Every Open of the same name inside one
//     process shares a single object, destroyed when its last handle closes.
//
// Example usage:
//
//	sem, err := semaphore.Default().Open("jobs.Writer", 1, 1)
//	if err != nil {
//	  return err
//	}
//	defer sem.Close()
//	if ok, _ := sem.Acquire(time.Second); ok {
//	  // critical section
//	  _, _ = sem.Release()
//	}
package semaphore
