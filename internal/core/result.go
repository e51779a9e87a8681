package core

// ResultKind classifies the outcome reported for a user-initiated operation.
type ResultKind string

const (
	Loading ResultKind = "loading"
	Success ResultKind = "success"
	Failure ResultKind = "failure"
)

// Result is what observers see for a create/update/delete/refresh.
// Loading is transient; Success and Failure are terminal.
type Result struct {
	Kind    ResultKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	// LocalID of the affected record when the operation targets one.
	LocalID int64 `json:"local_id,omitempty"`
}

func LoadingResult() Result { return Result{Kind: Loading} }

func SuccessResult(msg string) Result { return Result{Kind: Success, Message: msg} }

func FailureResult(reason string) Result { return Result{Kind: Failure, Message: reason} }

// Terminal reports whether no further results follow for the operation.
func (r Result) Terminal() bool {
	return r.Kind == Success || r.Kind == Failure
}
