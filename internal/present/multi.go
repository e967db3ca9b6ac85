package present

import (
	"errors"

	"github.com/banshee-data/benchscope/internal/pipeline"
)

// Multi presents every value to each of its presenters in order. A failing
// presenter does not stop the others; their errors are joined.
type Multi[T any] []pipeline.Presenter[T]

// Present implements pipeline.Presenter.
func (m Multi[T]) Present(v T) error {
	var errs []error
	for _, p := range m {
		if err := p.Present(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoSample forwards to every member that implements
// pipeline.NoSampleReporter.
func (m Multi[T]) NoSample(err error) error {
	var errs []error
	for _, p := range m {
		if r, ok := p.(pipeline.NoSampleReporter); ok {
			if perr := r.NoSample(err); perr != nil {
				errs = append(errs, perr)
			}
		}
	}
	return errors.Join(errs...)
}
