package credentials

import (
	"clinicsync/internal/utils"
)

// Source indicates where an access key was found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceConfig  Source = "config"
	SourceNone    Source = "none"
)

// Credentials is a resolved remote access key
type Credentials struct {
	Host      string
	AccessKey string
	Source    Source
}

// Resolver finds the remote access key.
// Priority order: keyring > environment variable > config file.
type Resolver struct {
	// keyringLookup is swapped in tests
	keyringLookup func(host string) (string, error)
	available     func() bool
}

// NewResolver creates a resolver backed by the OS keyring
func NewResolver() *Resolver {
	return &Resolver{keyringLookup: Get, available: IsAvailable}
}

// Resolve returns the access key for host.
// configKey is the value from the config file, possibly empty.
func (r *Resolver) Resolve(host, configKey string) (*Credentials, error) {
	if host != "" && r.available() {
		if key, err := r.keyringLookup(host); err == nil && key != "" {
			return &Credentials{Host: host, AccessKey: key, Source: SourceKeyring}, nil
		}
		// keyring errors fall through to the next source
	}

	if key := GetEnvAccessKey(); key != "" {
		return &Credentials{Host: host, AccessKey: key, Source: SourceEnv}, nil
	}

	if configKey != "" {
		return &Credentials{Host: host, AccessKey: configKey, Source: SourceConfig}, nil
	}

	return nil, utils.ErrCredentialsNotFound(host)
}
