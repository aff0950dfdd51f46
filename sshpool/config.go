package sshpool

import (
	"time"

	"machinerun.io/sanlvm"
)

const (
	// DefaultPort is the SSH port used when none is configured.
	DefaultPort = 22

	// DefaultConnectTimeout bounds session establishment.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultMinSize is the number of sessions warmed on first use.
	DefaultMinSize = 1

	// DefaultMaxSize is the maximum number of concurrently checked-out
	// sessions.
	DefaultMaxSize = 5
)

// Config describes the SSH endpoint a Pool connects to. Password and
// PrivateKey may both be set; at least one is required.
type Config struct {
	// Host is the address of the storage controller.
	Host string `yaml:"host"`

	// Port is the SSH port, defaulting to 22.
	Port int `yaml:"port"`

	// User is the login name.
	User string `yaml:"user"`

	// Password authenticates the session when set.
	Password string `yaml:"password"`

	// PrivateKey is the path of a private key file to authenticate with.
	PrivateKey string `yaml:"private_key"`

	// ConnectTimeout bounds establishment of a single session.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// MinSize is the number of sessions the pool keeps warm once used.
	MinSize int `yaml:"min_size"`

	// MaxSize caps concurrently checked-out sessions; further callers
	// block until a session is released.
	MaxSize int `yaml:"max_size"`
}

// Validate reports whether the configuration is usable for remote
// execution.
func (c Config) Validate() error {
	if c.Host == "" {
		return &sanlvm.ValidationError{Reason: "remote host must be set"}
	}

	if c.User == "" {
		return &sanlvm.ValidationError{Reason: "remote user must be set"}
	}

	if c.Password == "" && c.PrivateKey == "" {
		return &sanlvm.ValidationError{
			Reason: "remote execution requires a password or a private key"}
	}

	if c.MaxSize != 0 && c.MinSize > c.MaxSize {
		return &sanlvm.ValidationError{Reason: "pool min_size exceeds max_size"}
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	if c.MinSize == 0 {
		c.MinSize = DefaultMinSize
	}

	if c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}

	return c
}
