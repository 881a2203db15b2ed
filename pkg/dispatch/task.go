package dispatch

// Task is what travels through the queue: either a payload for a worker or a
// stop signal telling the worker that dequeues it to exit. The zero Task is a
// Work task with a zero payload, never a stop signal.
type Task[T any] struct {
	payload T
	stop    bool
}

// Work wraps v as a unit of work.
func Work[T any](v T) Task[T] {
	return Task[T]{payload: v}
}

// Stop returns a stop signal.
func Stop[T any]() Task[T] {
	return Task[T]{stop: true}
}

// IsStop reports whether t is a stop signal.
func (t Task[T]) IsStop() bool {
	return t.stop
}

// Payload returns the wrapped value. It is the zero value for stop signals.
func (t Task[T]) Payload() T {
	return t.payload
}
