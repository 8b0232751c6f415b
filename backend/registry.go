package backend

import (
	"fmt"
	"sort"
	"sync"
)

// RemoteConfig is what a remote store constructor receives
type RemoteConfig struct {
	Type      string
	URL       string
	AccessKey string
}

// RemoteConstructor creates a remote store from its configuration
type RemoteConstructor func(config RemoteConfig) (RemoteStore, error)

// Registry holds registered remote store constructors
type Registry struct {
	mu               sync.RWMutex
	typeConstructors map[string]RemoteConstructor
}

var globalRegistry = &Registry{
	typeConstructors: make(map[string]RemoteConstructor),
}

// RegisterType registers a remote store constructor for a config type
func RegisterType(remoteType string, constructor RemoteConstructor) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.typeConstructors[remoteType] = constructor
}

// GetTypeConstructor returns the constructor for a remote type
func GetTypeConstructor(remoteType string) (RemoteConstructor, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	constructor, ok := globalRegistry.typeConstructors[remoteType]
	if !ok {
		return nil, fmt.Errorf("unsupported remote type: %s", remoteType)
	}
	return constructor, nil
}

// RegisteredTypes returns the registered remote types, sorted
func RegisteredTypes() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	types := make([]string, 0, len(globalRegistry.typeConstructors))
	for t := range globalRegistry.typeConstructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewRemote builds the remote store for config.Type.
// An empty URL means no remote is configured and yields (nil, nil).
func NewRemote(config RemoteConfig) (RemoteStore, error) {
	if config.URL == "" {
		return nil, nil
	}
	constructor, err := GetTypeConstructor(config.Type)
	if err != nil {
		return nil, err
	}
	return constructor(config)
}
