package offcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotActive is returned by Manager.Fetch when the manager does not serve fetches.
	ErrNotActive = errors.New("offcache: manager is not active")
	// ErrInvalidState is returned when a lifecycle event arrives in the wrong state.
	ErrInvalidState = errors.New("offcache: invalid lifecycle state")
	// ErrGenerationExists is returned when populating a name that is already sealed.
	ErrGenerationExists = errors.New("offcache: generation already exists")
	// ErrGenerationBusy is returned when a generation is being populated concurrently.
	ErrGenerationBusy = errors.New("offcache: generation is being populated")
)

// PopulationError reports a failed install. Resource is empty when the
// failure happened while writing the generation rather than fetching.
type PopulationError struct {
	Version  string
	Resource string
	Status   int
	Err      error
}

func (e *PopulationError) Error() string {
	switch {
	case e.Resource == "":
		return fmt.Sprintf("install %q: populate: %v", e.Version, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("install %q: fetch %s: status %d: %v", e.Version, e.Resource, e.Status, e.Err)
	default:
		return fmt.Sprintf("install %q: fetch %s: %v", e.Version, e.Resource, e.Err)
	}
}

func (e *PopulationError) Unwrap() error { return e.Err }

// DeletionError reports entries of a generation that could not be removed.
// The generation stays registered so a later Delete can finish the job.
type DeletionError struct {
	Name string
	Errs []error
}

func (e *DeletionError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("delete generation %q: %v", e.Name, e.Errs[0])
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("delete generation %q: %d errors: %s", e.Name, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *DeletionError) Unwrap() []error { return e.Errs }
