// Package sftp provides an SFTP object store family for objectio.
//
// It serves the scheme "sftp": the location authority names the remote
// host (optionally host:port), the path names a file under Config.Root.
// One SSH session is kept per host and reused across calls, mirroring the
// per-bucket client caching of the S3 store.
//
// SFTP servers have no throttling protocol, so every remote failure is
// surfaced as a non-retryable *objectio.FatalError.
//
// Basic usage with password authentication:
//
//	store, err := sftp.New(sftp.Config{
//	    User:     "catalog",
//	    Password: "secret",
//	    Root:     "/var/lib/catalog",
//	})
package sftp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/lakecat/objectio"
)

func init() {
	objectio.Register("sftp", NewFromConfig)
}

// Schemes lists the location schemes this store serves.
func Schemes() []string {
	return []string{"sftp"}
}

// session is one cached host handle: the SSH connection and the SFTP
// subsystem client on top of it. Owned by the store; callers borrow it
// for one call.
type session struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *session) close() error {
	var errs []error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ssh != nil {
		if err := s.ssh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %v", errs)
	}
	return nil
}

type sessionEntry struct {
	once sync.Once
	sess *session
	err  error
}

// Store implements objectio.Store for SFTP hosts.
type Store struct {
	cfg Config

	// dial opens the session for a host address. Overridden in tests.
	dial func(addr string) (*session, error)

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	closed   bool
}

// New creates a new SFTP store with the given configuration.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}

	s := &Store{
		cfg:      cfg,
		sessions: make(map[string]*sessionEntry),
	}
	s.dial = s.dialHost
	return s, nil
}

// NewFromConfig creates a new SFTP store from a config map.
// This is used by the objectio registry.
func NewFromConfig(configMap map[string]string) (objectio.Store, error) {
	cfg := ConfigFromMap(configMap)
	return New(cfg)
}

// validate checks scheme and authority and returns the host identity.
func (s *Store) validate(loc objectio.Location) (string, error) {
	if loc.Scheme() != "sftp" {
		return "", fmt.Errorf("%w: not an sftp scheme: %q", objectio.ErrInvalidLocation, loc.String())
	}
	return loc.RequiredAuthority()
}

// sessionFor returns the cached session for host, dialing on first use.
// Concurrent first-use for one host collapses to a single dial; a failed
// dial is cached, like the S3 client pool's policy.
func (s *Store) sessionFor(host string) (*session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, objectio.ErrStoreClosed
	}
	entry, ok := s.sessions[host]
	if !ok {
		entry = &sessionEntry{}
		s.sessions[host] = entry
	}
	s.mu.Unlock()

	entry.once.Do(func() {
		entry.sess, entry.err = s.dial(s.hostAddr(host))
	})
	return entry.sess, entry.err
}

// hostAddr appends the configured default port when the authority carries
// none.
func (s *Store) hostAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

// dialHost opens the SSH connection and SFTP subsystem for one address.
func (s *Store) dialHost(addr string) (*session, error) {
	var authMethods []ssh.AuthMethod
	if s.cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.cfg.Password))
	}
	if s.cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(s.cfg.KeyFile, s.cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // G106: used only when no known_hosts file is configured
	if s.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(s.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	sshConfig := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(s.cfg.Timeout) * time.Second,
		HostKeyCallback: hostKeyCallback,
	}

	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection to %s failed: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	return &session{ssh: sshClient, sftp: sftpClient}, nil
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// fullPath resolves an object key under the configured root.
func (s *Store) fullPath(key string) string {
	return path.Join("/", s.cfg.Root, key)
}

// classifyRemote maps a failed SFTP call into the shared taxonomy. There
// is no throttling signal to look for; missing files surface with
// objectio.ErrNotFound as the cause, everything else passes through as-is.
func classifyRemote(op string, target string, err error) error {
	if os.IsNotExist(err) {
		return &objectio.FatalError{
			Cause: fmt.Errorf("sftp: %s %s: %w", op, target, objectio.ErrNotFound),
		}
	}
	return &objectio.FatalError{
		Cause: fmt.Errorf("sftp: %s %s: %w", op, target, err),
	}
}

// Ping verifies the host is reachable and the SFTP subsystem answers.
func (s *Store) Ping(ctx context.Context, loc objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	host, err := s.validate(loc)
	if err != nil {
		return err
	}

	sess, err := s.sessionFor(host)
	if err != nil {
		return fmt.Errorf("sftp: ping %s: %w", host, err)
	}
	if _, err := sess.sftp.Getwd(); err != nil {
		return fmt.Errorf("sftp: ping %s: %w", host, err)
	}
	return nil
}

// Read opens the remote file for streaming. The returned stream is the
// SFTP file handle; closing it releases the handle on the server.
func (s *Store) Read(ctx context.Context, loc objectio.Location) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessionFor(host)
	if err != nil {
		return nil, &objectio.FatalError{Cause: err}
	}

	f, err := sess.sftp.Open(s.fullPath(loc.Key()))
	if err != nil {
		return nil, classifyRemote("read", loc.String(), err)
	}
	return f, nil
}

// Write returns a buffering sink; the commit on first Close creates parent
// directories and writes the file in one pass.
func (s *Store) Write(ctx context.Context, loc objectio.Location) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, err := s.validate(loc)
	if err != nil {
		return nil, err
	}

	return &sink{
		store: s,
		host:  host,
		path:  s.fullPath(loc.Key()),
	}, nil
}

// DeleteObjects groups locs by host and removes each group's files over
// that host's session. Hosts are attempted best-effort; the first failure
// per host is recorded in the aggregated *objectio.DeleteError. Removing
// an absent file is a no-op.
func (s *Store) DeleteObjects(ctx context.Context, locs []objectio.Location) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	groups := make(map[string][]string)
	for _, loc := range locs {
		host, err := s.validate(loc)
		if err != nil {
			return err
		}
		groups[host] = append(groups[host], s.fullPath(loc.Key()))
	}

	failures := make(map[string]error)
	for host, paths := range groups {
		sess, err := s.sessionFor(host)
		if err != nil {
			failures[host] = &objectio.FatalError{Cause: err}
			continue
		}
		for _, p := range paths {
			if err := sess.sftp.Remove(p); err != nil && !os.IsNotExist(err) {
				failures[host] = classifyRemote("delete", p, err)
				break
			}
		}
	}

	if len(failures) > 0 {
		return &objectio.DeleteError{Failures: failures}
	}
	return nil
}

// Close tears down every cached host session.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, entry := range s.sessions {
		if entry.sess != nil {
			if err := entry.sess.close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.sessions = nil

	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %v", errs)
	}
	return nil
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return objectio.ErrStoreClosed
	}
	return nil
}

// sink buffers writes and commits them to the remote file on first Close.
// Same at-most-once commit contract as the S3 sink.
type sink struct {
	store *Store
	host  string
	path  string

	mu        sync.Mutex
	buf       bytes.Buffer
	committed atomic.Bool
}

func (w *sink) Write(p []byte) (int, error) {
	if w.committed.Load() {
		return 0, objectio.ErrSinkClosed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *sink) Close() error {
	if !w.committed.CompareAndSwap(false, true) {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sess, err := w.store.sessionFor(w.host)
	if err != nil {
		return &objectio.FatalError{Cause: err}
	}

	if err := sess.sftp.MkdirAll(path.Dir(w.path)); err != nil {
		return classifyRemote("write", w.path, err)
	}
	f, err := sess.sftp.Create(w.path)
	if err != nil {
		return classifyRemote("write", w.path, err)
	}
	if _, err := f.Write(w.buf.Bytes()); err != nil {
		_ = f.Close()
		return classifyRemote("write", w.path, err)
	}
	if err := f.Close(); err != nil {
		return classifyRemote("write", w.path, err)
	}
	return nil
}

// Ensure Store implements objectio.Store.
var _ objectio.Store = (*Store)(nil)
