package forksync

import (
	"fmt"
	"time"
)

// Config holds the tunables of a recovery session.
type Config struct {
	// FetchAttempts is the number of times a single block fetch is tried
	// before the session aborts with ErrMissingBlock. Validation failures
	// are never retried.
	FetchAttempts int

	// RetryBackoff is the pause between fetch attempts for the same block.
	RetryBackoff time.Duration

	// FetchTimeout bounds one peer fetch. Zero disables the per-fetch
	// deadline.
	FetchTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		FetchAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
		FetchTimeout:  10 * time.Second,
	}
}

// ValidateBasic performs basic validation and returns an error if any
// check fails.
func (cfg Config) ValidateBasic() error {
	if cfg.FetchAttempts < 1 {
		return fmt.Errorf("fetch-attempts must be positive, got %d", cfg.FetchAttempts)
	}
	if cfg.RetryBackoff < 0 {
		return fmt.Errorf("retry-backoff cannot be negative, got %v", cfg.RetryBackoff)
	}
	if cfg.FetchTimeout < 0 {
		return fmt.Errorf("fetch-timeout cannot be negative, got %v", cfg.FetchTimeout)
	}
	return nil
}
