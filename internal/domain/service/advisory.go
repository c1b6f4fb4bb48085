package service

import "context"

// AdvisoryProvider queries one advisory model and returns its raw text answer.
type AdvisoryProvider interface {
	Name() string
	Query(ctx context.Context, prompt string) (string, error)
}
