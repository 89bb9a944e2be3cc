package rag

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDocument   = errors.New("document has no extractable text")
	ErrEmptyIndex      = errors.New("vector index is empty")
	ErrInvalidQuestion = errors.New("question is empty")
	ErrNoConversation  = errors.New("conversation has no index")
	ErrProvider        = errors.New("provider call failed")
	ErrEmptyCompletion = errors.New("model returned an empty completion")
)

// ProviderError wraps a failure of the embedding provider or the generative
// model. errors.Is(err, ErrProvider) holds for every ProviderError.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

func providerError(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}
