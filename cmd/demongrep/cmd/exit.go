package cmd

import (
	"errors"

	dgerrors "github.com/yxanul/demongrep/internal/errors"
)

// ExitCode maps an Execute error to the process exit code: 0 on success,
// 1 for user errors (bad input, missing index, config problems), 2 for
// internal failures.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *dgerrors.CodeError
	if errors.As(err, &ce) {
		switch ce.Code {
		case dgerrors.CodeIO, dgerrors.CodeEmbedding, dgerrors.CodeInternal:
			return 2
		default:
			return 1
		}
	}
	return 1
}
