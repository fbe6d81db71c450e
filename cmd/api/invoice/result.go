package invoice

// State is what a form renders after a failed submission.
type State struct {
	Errors  FieldErrors
	Message string
	Err     error // underlying cause, never sent to the browser unless explicitly exposed
}

type ResultKind int

const (
	Failed ResultKind = iota
	Redirected
	Completed
)

// Result is the outcome of a form operation. Navigation is a value the
// caller acts on, not a jump out of the handler.
type Result struct {
	Kind  ResultKind
	Path  string
	State State
}

func Redirect(path string) Result {
	return Result{Kind: Redirected, Path: path}
}

func Done() Result {
	return Result{Kind: Completed}
}

func Failure(state State) Result {
	return Result{Kind: Failed, State: state}
}

func (r Result) IsFailure() bool {
	return r.Kind == Failed
}
