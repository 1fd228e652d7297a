package transaction

// Observer is told about every transition attempt, successful or not.
type Observer interface {
	TransitionAttempted(from, to Status, err error)
}
