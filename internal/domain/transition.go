package domain

// legalTransitions is the complete status graph. EXPIRED entries exist for
// every non-terminal status; only the sweeper takes them. GENERATING→CANCELLED
// is the best-effort cancel: the record closes immediately while the in-flight
// provider call runs to an ignored end.
var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusGenerating: true,
		StatusCancelled:  true,
		StatusFailed:     true,
		StatusExpired:    true,
	},
	StatusGenerating: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
	StatusFailed: {
		StatusPending: true,
		StatusExpired: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// CanTransition reports whether moving a record from one status to another is
// legal. Identity moves are not transitions.
func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}

// CheckTransition returns an IllegalTransitionError when from→to is not in
// the legal set.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
