package sftp

import (
	"errors"
	"os"
	"strconv"
)

// Errors specific to the SFTP store.
var (
	ErrUserRequired = errors.New("sftp: user is required")
	ErrAuthRequired = errors.New("sftp: password or key_file is required")
)

// Config holds configuration for the SFTP store. The host is not part of
// the configuration: it comes from each location's authority, and the
// store keeps one SSH session per host.
type Config struct {
	// User is the SSH username (required), shared by all hosts.
	User string

	// Password is the SSH password.
	// Either Password or KeyFile must be provided.
	Password string

	// KeyFile is the path to an SSH private key file.
	// Either Password or KeyFile must be provided.
	KeyFile string

	// KeyPassphrase is the passphrase for encrypted private keys.
	KeyPassphrase string

	// Root is the base directory on every remote host.
	// Object keys are resolved relative to this directory.
	Root string

	// Port is the SSH port used when a location's authority carries no
	// explicit port. Default: 22.
	Port int

	// KnownHostsFile is the path to a known_hosts file used for host key
	// verification. If empty, verification is disabled (insecure; for
	// development and testing only).
	KnownHostsFile string

	// Timeout is the connection timeout in seconds. Default: 30.
	Timeout int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:    22,
		Timeout: 30,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - OBJECTIO_SFTP_USER: username
//   - OBJECTIO_SFTP_PASSWORD: password
//   - OBJECTIO_SFTP_KEY_FILE: path to private key
//   - OBJECTIO_SFTP_KEY_PASSPHRASE: passphrase for encrypted key
//   - OBJECTIO_SFTP_ROOT: base directory
//   - OBJECTIO_SFTP_PORT: default SSH port
//   - OBJECTIO_SFTP_KNOWN_HOSTS: path to known_hosts file
//   - OBJECTIO_SFTP_TIMEOUT: connection timeout in seconds
func ConfigFromEnv() Config {
	config := DefaultConfig()

	if v := os.Getenv("OBJECTIO_SFTP_USER"); v != "" {
		config.User = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_PASSWORD"); v != "" {
		config.Password = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_KEY_FILE"); v != "" {
		config.KeyFile = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_KEY_PASSPHRASE"); v != "" {
		config.KeyPassphrase = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_ROOT"); v != "" {
		config.Root = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Port = port
		}
	}
	if v := os.Getenv("OBJECTIO_SFTP_KNOWN_HOSTS"); v != "" {
		config.KnownHostsFile = v
	}
	if v := os.Getenv("OBJECTIO_SFTP_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}

	return config
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - user: username (required)
//   - pass or password: password
//   - key_file: path to private key
//   - key_passphrase: passphrase for encrypted key
//   - root: base directory
//   - port: default SSH port
//   - known_hosts: path to known_hosts file
//   - timeout: connection timeout in seconds
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["user"]; ok {
		config.User = v
	}
	if v, ok := m["pass"]; ok {
		config.Password = v
	}
	if v, ok := m["password"]; ok {
		config.Password = v
	}
	if v, ok := m["key_file"]; ok {
		config.KeyFile = v
	}
	if v, ok := m["key_passphrase"]; ok {
		config.KeyPassphrase = v
	}
	if v, ok := m["root"]; ok {
		config.Root = v
	}
	if v, ok := m["port"]; ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Port = port
		}
	}
	if v, ok := m["known_hosts"]; ok {
		config.KnownHostsFile = v
	}
	if v, ok := m["timeout"]; ok {
		if timeout, err := strconv.Atoi(v); err == nil && timeout > 0 {
			config.Timeout = timeout
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.User == "" {
		return ErrUserRequired
	}
	if c.Password == "" && c.KeyFile == "" {
		return ErrAuthRequired
	}
	return nil
}
