package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/liliang-cn/gptsh/pkg/domain"
)

// Exit codes: 0 success, 2 configuration or usage error, 4 tool approval
// denied when tools were required, 124 timeout, 130 interrupted, 1
// anything else.
const (
	exitOK          = 0
	exitGeneric     = 1
	exitConfig      = 2
	exitDenied      = 4
	exitTimeout     = 124
	exitInterrupted = 130
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrConfigInvalid), errors.Is(err, domain.ErrInvalidInput):
		return exitConfig
	case errors.Is(err, domain.ErrApprovalDenied):
		return exitDenied
	case errors.Is(err, context.DeadlineExceeded):
		return exitTimeout
	case errors.Is(err, domain.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitGeneric
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil && !errors.Is(err, domain.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "gptsh:", err)
	}
	os.Exit(exitCode(err))
}
