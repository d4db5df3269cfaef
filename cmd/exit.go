package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/bundlepress/internal/bundle"
	"github.com/fulmenhq/bundlepress/internal/pipeline"
	"github.com/fulmenhq/bundlepress/pkg/config"
	"github.com/fulmenhq/bundlepress/pkg/exitcode"
)

// incompleteError means a phase stopped with work left; re-running Rerun
// resumes it.
type incompleteError struct {
	Phase     string
	Remaining int
	Rerun     string
}

func (e *incompleteError) Error() string {
	return fmt.Sprintf("%s incomplete: %d item(s) remaining; re-run `%s` to resume", e.Phase, e.Remaining, e.Rerun)
}

// exitCodeFor maps an error returned by a command to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var (
		cfgErr  *config.ConfigError
		valErr  *bundle.ValidationError
		dupErr  *bundle.DuplicateIndexError
		incErr  *incompleteError
		consErr *pipeline.ConsistencyError
	)
	switch {
	case errors.As(err, &cfgErr):
		return exitcode.ConfigError
	case errors.As(err, &valErr), errors.As(err, &dupErr):
		return exitcode.ValidationError
	case errors.As(err, &incErr):
		return exitcode.Incomplete
	case errors.As(err, &consErr):
		return exitcode.ConsistencyError
	default:
		return exitcode.GeneralError
	}
}
