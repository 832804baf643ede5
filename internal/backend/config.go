package backend

import (
	"fmt"

	"charity/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		FirebaseDatabaseURL:     appConfig.FirebaseDatabaseURL,
		FirebaseCredentialsFile: appConfig.FirebaseCredentialsFile,
		FirebaseAuth:            appConfig.FirebaseAuthEnabled,

		PollInterval: appConfig.PollInterval,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case FirebaseBackend:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("Firebase database URL is required for firebase backend")
		}
	case MemoryBackend:
	}

	if c.FirebaseAuth && c.FirebaseDatabaseURL == "" {
		return fmt.Errorf("Firebase database URL is required for Firebase auth")
	}
	return nil
}

// NeedsFirebaseApp reports whether a Firebase app must be initialised.
func (c Config) NeedsFirebaseApp() bool {
	return c.Type == FirebaseBackend || c.FirebaseAuth
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, FirebaseBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
