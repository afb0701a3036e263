package config

import (
	"fmt"
	"time"

	"github.com/hay-kot/criterio"
)

// Validate performs structural validation of the configuration.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("max_concurrent_jobs", c.MaxConcurrentJobs, positive),
		criterio.Run("retry_attempts", c.RetryAttempts, nonNegative),
		criterio.Run("retry_backoff_base", c.RetryBackoffBase, positiveDuration),
		criterio.Run("request_timeout", c.RequestTimeout, positiveDuration),
		criterio.Run("page_size", c.PageSize, validPageSize),
		criterio.Run("cache.max_entries", c.Cache.MaxEntries, positive),
		c.validateTTLs(),
	)
}

func (c *Config) validateTTLs() error {
	var errs criterio.FieldErrorsBuilder

	ttls := map[string]time.Duration{
		"ttl.workspace": c.TTL.Workspace,
		"ttl.project":   c.TTL.Project,
		"ttl.task":      c.TTL.Task,
		"ttl.comment":   c.TTL.Comment,
		"ttl.user":      c.TTL.User,
	}
	for field, d := range ttls {
		if d <= 0 {
			errs = errs.Append(field, fmt.Errorf("must be a positive duration, got %s", d))
		}
	}

	return errs.ToError()
}

func positive(n int) error {
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func positiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be a positive duration, got %s", d)
	}
	return nil
}

// Asana caps page sizes at 100.
func validPageSize(n int) error {
	if n < 1 || n > 100 {
		return fmt.Errorf("must be between 1 and 100, got %d", n)
	}
	return nil
}
