// Package sshpool maintains a bounded pool of authenticated SSH sessions
// to a single storage endpoint and runs commands over them with bounded
// retry. Only transport-level failures are retried; a command that was
// delivered and exited non-zero is a deterministic failure and surfaces
// immediately.
package sshpool

import (
	"bytes"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/crypto/ssh"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/logging"
)

const (
	backoffMin = 200 * time.Millisecond
	backoffMax = 5 * time.Second
)

// session is one authenticated channel to the endpoint.
type session interface {
	run(command string) (stdout string, stderr string, err error)
	close() error
}

type dialFunc func(cfg Config) (session, error)

// Pool is a bounded pool of SSH sessions. Sessions are dialed lazily,
// warmed up to MinSize on first use and never exceed MaxSize checked
// out at once.
type Pool struct {
	cfg  Config
	dial dialFunc
	log  zerolog.Logger

	tokens chan struct{}
	warm   sync.Once

	mu   sync.Mutex
	idle []session

	// sleep is the backoff delay primitive; it blocks only the retrying
	// caller, never other pool users.
	sleep func(time.Duration)
}

// New creates a pool for the endpoint. The configuration is validated
// up front; no connection is made until the first command runs.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:    cfg,
		dial:   sshDial,
		log:    logging.WithComponent("sshpool"),
		tokens: make(chan struct{}, cfg.MaxSize),
		sleep:  time.Sleep,
	}

	for i := 0; i < cfg.MaxSize; i++ {
		p.tokens <- struct{}{}
	}

	return p, nil
}

// Session is a checked-out SSH session. It is owned exclusively by the
// holder until returned with Release.
type Session struct {
	// ID correlates this session's log entries.
	ID string

	s session
}

// Run executes one command line on the session.
func (s *Session) Run(command string) (string, string, error) {
	return s.s.run(command)
}

// Acquire checks a session out of the pool, blocking while MaxSize
// sessions are already held. The caller must Release it on every exit
// path.
func (p *Pool) Acquire() (*Session, error) {
	<-p.tokens

	s, err := p.checkout()
	if err != nil {
		p.tokens <- struct{}{}
		return nil, err
	}

	return &Session{ID: uuid.NewV4().String(), s: s}, nil
}

// Release returns a session to the pool. Safe to call with a session
// whose transport has already failed.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}

	if s.s != nil {
		p.checkin(s.s)
		s.s = nil
	}

	p.tokens <- struct{}{}
}

// ExecuteWithRetry runs command on a pooled session, retrying transport
// failures up to attempts times with a randomized backoff between
// tries. A failed session is dropped and the retry runs on a freshly
// established one. A non-zero exit from a delivered command is returned
// as-is (an *sanlvm.ExecutionError) and never retried. Once all
// attempts are spent the failure is a *sanlvm.ConnectionError.
func (p *Pool) ExecuteWithRetry(command string, attempts int) (string, string, error) {
	if attempts < 1 {
		attempts = 1
	}

	<-p.tokens
	defer func() { p.tokens <- struct{}{} }()

	var lastErr error

	var s session

	defer func() {
		if s != nil {
			p.checkin(s)
		}
	}()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.sleep(backoffDelay())
		}

		if s == nil {
			if s, lastErr = p.checkout(); lastErr != nil {
				p.log.Debug().Err(lastErr).Int("attempt", attempt).
					Str("command", command).Msg("session dial failed")

				s = nil

				continue
			}
		}

		stdout, stderr, err := s.run(command)
		if err == nil {
			return stdout, stderr, nil
		}

		if execErr := (*sanlvm.ExecutionError)(nil); errors.As(err, &execErr) {
			// Command was delivered; rerunning it would repeat a
			// logically-failed operation.
			return stdout, stderr, err
		}

		lastErr = err

		p.log.Debug().Err(err).Int("attempt", attempt).
			Str("command", command).Msg("transport failure, dropping session")

		_ = s.close()
		s = nil
	}

	p.log.Error().Err(lastErr).Int("attempts", attempts).
		Str("command", command).Msg("retry budget exhausted")

	return "", "", &sanlvm.ConnectionError{
		Command:  command,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// Close tears down all idle sessions. Checked-out sessions are closed
// as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.idle {
		_ = s.close()
	}

	p.idle = nil
}

func (p *Pool) checkout() (session, error) {
	p.warm.Do(p.warmUp)

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		return s, nil
	}
	p.mu.Unlock()

	return p.dial(p.cfg)
}

func (p *Pool) checkin(s session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.idle = append(p.idle, s)
}

// warmUp pre-establishes MinSize sessions. Failures here are not fatal:
// the command path dials its own session and reports errors there.
func (p *Pool) warmUp() {
	for i := 0; i < p.cfg.MinSize; i++ {
		s, err := p.dial(p.cfg)
		if err != nil {
			p.log.Debug().Err(err).Msg("pool warm-up dial failed")
			return
		}

		p.checkin(s)
	}
}

func backoffDelay() time.Duration {
	return backoffMin + time.Duration(rand.Int63n(int64(backoffMax-backoffMin))) //nolint:gosec
}

type sshSession struct {
	client *ssh.Client
}

func sshDial(cfg Config) (session, error) {
	auths := []ssh.AuthMethod{}

	if cfg.Password != "" {
		auths = append(auths, ssh.Password(cfg.Password))
	}

	if cfg.PrivateKey != "" {
		raw, err := os.ReadFile(cfg.PrivateKey)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read private key %q", cfg.PrivateKey)
		}

		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse private key %q", cfg.PrivateKey)
		}

		auths = append(auths, ssh.PublicKeys(signer))
	}

	client, err := ssh.Dial("tcp",
		net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		&ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
			Timeout:         cfg.ConnectTimeout,
		})
	if err != nil {
		return nil, err
	}

	return &sshSession{client: client}, nil
}

func (s *sshSession) run(command string) (string, string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer

	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Run(command); err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return stdout.String(), stderr.String(), &sanlvm.ExecutionError{
				Argv:     []string{command},
				ExitCode: exitErr.ExitStatus(),
				Stderr:   stderr.String(),
			}
		}

		// Session died without delivering an exit status.
		return stdout.String(), stderr.String(), err
	}

	return stdout.String(), stderr.String(), nil
}

func (s *sshSession) close() error {
	return s.client.Close()
}
