package evaluation

import "encoding/json"

// Field is one optional column in a partial update. The zero value leaves the
// column untouched; Set writes a value and Null writes NULL.
type Field[T any] struct {
	value T
	set   bool
	null  bool
}

func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}

// IsSet reports whether the field takes part in the update.
func (f Field[T]) IsSet() bool { return f.set }

// Get returns the value to write; ok is false when the field should become NULL.
func (f Field[T]) Get() (v T, ok bool) {
	if f.null {
		return v, false
	}
	return f.value, true
}

// JobPatch is a field-level update of a job row.
type JobPatch struct {
	Status       Field[Status]
	Stage        Field[Stage]
	ErrorMessage Field[string]
}

func (p JobPatch) Empty() bool {
	return !p.Status.IsSet() && !p.Stage.IsSet() && !p.ErrorMessage.IsSet()
}

// ResultPatch is a field-level update of an evaluation result row.
type ResultPatch struct {
	RawCV           Field[json.RawMessage]
	RawProject      Field[json.RawMessage]
	RawCVScore      Field[json.RawMessage]
	RawProjectScore Field[json.RawMessage]

	CVMatchRate     Field[float64]
	CVFeedback      Field[string]
	ProjectScore    Field[float64]
	ProjectFeedback Field[string]
	OverallSummary  Field[string]
}

func (p ResultPatch) Empty() bool {
	return !p.RawCV.IsSet() && !p.RawProject.IsSet() && !p.RawCVScore.IsSet() &&
		!p.RawProjectScore.IsSet() && !p.CVMatchRate.IsSet() && !p.CVFeedback.IsSet() &&
		!p.ProjectScore.IsSet() && !p.ProjectFeedback.IsSet() && !p.OverallSummary.IsSet()
}
