// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// fatal reports whether a tool error ends the turn instead of being reported
// in the tool result.
func fatal(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeUnknownTool, errors.CodeConfiguration:
		return true
	}
	return false
}

// turnError normalizes the error a turn ends with.
func turnError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var re *errors.RelayError
	if stderrors.As(err, &re) {
		return err
	}
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(ctx.Err(), context.Canceled):
		return errors.New(errors.CodeContextLost, "caller went away during the turn", err).
			WithRecoverable(false)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeout("agent turn", err)
	}
	return errors.New(errors.CodeInternal, "turn failed", err)
}
