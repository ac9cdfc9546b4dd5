package sandbox

import (
	"math"
	"time"
)

// maxLifetimeSeconds is the largest lifetime E2B accepts (int32 seconds).
const maxLifetimeSeconds = math.MaxInt32

// Policy defines how sandbox sessions are requested from the provider.
type Policy struct {
	Template       string            // provider template (e.g. "code-interpreter-v1")
	DefaultTimeout time.Duration     // lifetime when the caller does not ask for one
	MaxTimeout     time.Duration     // upper bound on caller-requested lifetimes; 0 means none
	Metadata       map[string]string // attached to every sandbox
}

// DefaultPolicy returns the defaults used by the gateway.
func DefaultPolicy() Policy {
	return Policy{
		Template:       "code-interpreter-v1",
		DefaultTimeout: 60 * time.Second,
		MaxTimeout:     time.Hour,
	}
}

// Lifetime converts a caller's advisory timeout in seconds to the lifetime
// requested from the provider. Zero selects the default. The cap is applied
// in seconds so huge values cannot overflow time.Duration.
func (p Policy) Lifetime(seconds int) time.Duration {
	if seconds <= 0 {
		return p.DefaultTimeout
	}
	if p.MaxTimeout > 0 && seconds > int(p.MaxTimeout/time.Second) {
		return p.MaxTimeout
	}
	if seconds > maxLifetimeSeconds {
		seconds = maxLifetimeSeconds
	}
	return time.Duration(seconds) * time.Second
}

// CreateOpts builds the session options for one request.
func (p Policy) CreateOpts(timeoutSeconds int, metadata map[string]string) CreateOpts {
	md := make(map[string]string, len(p.Metadata)+len(metadata))
	for k, v := range p.Metadata {
		md[k] = v
	}
	for k, v := range metadata {
		md[k] = v
	}
	return CreateOpts{
		Template: p.Template,
		Timeout:  p.Lifetime(timeoutSeconds),
		Metadata: md,
	}
}
