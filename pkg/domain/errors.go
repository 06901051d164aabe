package domain

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrConfigInvalid    = errors.New("configuration error")
	ErrNotConnected     = errors.New("client not connected")
	ErrToolNotFound     = errors.New("tool not found")
	ErrServerNotFound   = errors.New("server not found")
	ErrApprovalDenied   = errors.New("tool approval denied")
	ErrGenerationFailed = errors.New("text generation failed")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInterrupted      = errors.New("interrupted")
)
