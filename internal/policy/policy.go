// Package policy defines the retention rules applied to the watched directory.
package policy

import (
	"time"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

const (
	// DefaultCheckInterval is the pause between the end of one sweep and the start of the next.
	DefaultCheckInterval = 60 * time.Second

	// DefaultFileLifespan is the age at which a regular file is deleted.
	DefaultFileLifespan = 24 * time.Hour
)

// Default returns the compiled-in retention policy.
func Default() domain.RetentionPolicy {
	return domain.RetentionPolicy{
		CheckInterval: DefaultCheckInterval,
		FileLifespan:  DefaultFileLifespan,
	}
}

// Age returns how long ago a file's status last changed relative to now.
// The result is negative when the timestamp lies in the future.
func Age(now time.Time, meta domain.FileMeta) time.Duration {
	return now.Sub(meta.ChangeTime)
}

// IsExpired reports whether a file of the given age must be deleted.
// Equality triggers deletion; a negative age (clock skew) never does.
func IsExpired(p domain.RetentionPolicy, age time.Duration) bool {
	if age < 0 {
		return false
	}
	return age >= p.FileLifespan
}
