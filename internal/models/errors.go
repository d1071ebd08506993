package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is fatal at startup: a required path, model or setting is missing or invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrCredentialMissing means a provider has no API key configured.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrIngestionPartial wraps a single source file that could not be parsed.
	ErrIngestionPartial = errors.New("source file skipped")
	// ErrEmptyCorpus means no documents were found; ingestion is a no-op.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrIndexNotFound means no index has been persisted yet.
	ErrIndexNotFound = errors.New("index not found, run ingestion first")
	// ErrIndexRebuild means the swap of a rebuilt index failed and the store may be unusable.
	ErrIndexRebuild = errors.New("index rebuild failed")
	// ErrProviderCall wraps a failed embedding or language model call.
	ErrProviderCall = errors.New("provider call failed")
	// ErrProviderTimeout is a provider call that ran past its deadline.
	ErrProviderTimeout = fmt.Errorf("%w: timeout", ErrProviderCall)
	// ErrEmbedderMismatch means the index was built with a different embedding provider.
	ErrEmbedderMismatch = errors.New("index was built with a different embedder")
	ErrRebuildInProgress = errors.New("another index rebuild is in progress")
	ErrInvalidQuery      = errors.New("invalid query")
)

// FileError reports a source file skipped during loading.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() []error {
	return []error{ErrIngestionPartial, e.Err}
}

// ProviderError classifies a failed embedding or language model call.
// Cancellation is passed through untouched.
func ProviderError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrProviderTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderCall, op, err)
}
