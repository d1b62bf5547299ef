package core

// Outcome distinguishes the three shapes of a Result.
type Outcome int

const (
	OutcomeValue Outcome = iota
	OutcomeNone
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValue:
		return "value"
	case OutcomeNone:
		return "none"
	default:
		return "error"
	}
}

// Result carries a value, an explicit absence, or an error.
type Result[T any] struct {
	value T
	found bool
	err   error
}

func Found[T any](value T) Result[T] {
	return Result[T]{value: value, found: true}
}

func None[T any]() Result[T] {
	return Result[T]{}
}

func Failed[T any](err error) Result[T] {
	if err == nil {
		err = NewError(ErrorInternal, "core: failed result without error")
	}
	return Result[T]{err: err}
}

func (r Result[T]) Outcome() Outcome {
	switch {
	case r.err != nil:
		return OutcomeError
	case r.found:
		return OutcomeValue
	default:
		return OutcomeNone
	}
}

func (r Result[T]) Get() (T, bool, error) {
	return r.value, r.found, r.err
}

func (r Result[T]) Value() T {
	return r.value
}

func (r Result[T]) Found() bool {
	return r.found && r.err == nil
}

func (r Result[T]) Err() error {
	return r.err
}

// OrNotFound collapses absence into an ErrorNotFound error for callers that
// only branch on success or failure.
func (r Result[T]) OrNotFound(message string) (T, error) {
	if r.err != nil {
		return r.value, r.err
	}
	if !r.found {
		var zero T
		return zero, NewError(ErrorNotFound, message)
	}
	return r.value, nil
}
