package credentials

import "os"

// EnvAccessKey holds the remote access key when it is not in the keyring
const EnvAccessKey = "CLINICSYNC_REMOTE_ACCESS_KEY"

// GetEnvAccessKey returns the access key from the environment, or ""
func GetEnvAccessKey() string {
	return os.Getenv(EnvAccessKey)
}
