package client

import "time"

// Options is spec.md §6's per-fetch option set.
type Options struct {
	FollowRedirects bool
	UserAgent       string
	// LastModified is epoch seconds; -1 omits If-Modified-Since, per
	// spec.md §3.
	LastModified int64
	Reuse        bool
	// Timeout is spec.md's per-request timeout; <=0 means "engine
	// default".
	Timeout time.Duration
	// MaxRedirects bounds the redirect chain a single fetch will follow,
	// supplemented from original_source/http/detail/curl.hpp (SPEC_FULL.md
	// §4); spec.md itself only names the FollowRedirects boolean.
	MaxRedirects int
}

// DefaultOptions returns the engine defaults named in spec.md §6:
// followRedirects=true, reuse=true, lastModified=-1 (omit), timeout=-1
// (engine default).
func DefaultOptions() Options {
	return Options{
		FollowRedirects: true,
		Reuse:           true,
		LastModified:    -1,
		Timeout:         -1,
		MaxRedirects:    10,
	}
}

func (o Options) effectiveTimeout(engineDefault time.Duration) time.Duration {
	if o.Timeout <= 0 {
		return engineDefault
	}
	return o.Timeout
}

func (o Options) maxRedirects() int {
	if o.MaxRedirects <= 0 {
		return 10
	}
	return o.MaxRedirects
}
