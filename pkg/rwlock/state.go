package rwlock

// State is what a Lock instance currently holds.
type State int

const (
	StateIdle State = iota
	StateReadHeld
	StateWriteHeld
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReadHeld:
		return "read-held"
	case StateWriteHeld:
		return "write-held"
	default:
		return "unknown"
	}
}

const (
	opEnterRead  = "TryEnterReadLock"
	opExitRead   = "ExitReadLock"
	opEnterWrite = "TryEnterWriteLock"
	opExitWrite  = "ExitWriteLock"
)

// transition returns the state reached by op from s, or a *StateError.
func transition(s State, op string) (State, error) {
	switch {
	case s == StateIdle && op == opEnterRead:
		return StateReadHeld, nil
	case s == StateIdle && op == opEnterWrite:
		return StateWriteHeld, nil
	case s == StateReadHeld && op == opExitRead:
		return StateIdle, nil
	case s == StateWriteHeld && op == opExitWrite:
		return StateIdle, nil
	}
	return s, &StateError{Op: op, State: s}
}
