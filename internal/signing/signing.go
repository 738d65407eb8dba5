// Package signing produces and checks HMAC signatures over ticket
// payloads.  Keys live in a KeyStore and rotate: the key that was
// current before the last rotation stays valid for verification
// during a grace period of twice the rotation interval.
package signing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrUnknownAlgorithm is returned by New for unsupported digests.
	ErrUnknownAlgorithm = errors.New("signing: unknown hmac algorithm")
	// ErrNoKey means the store still had no current key right after a
	// rotation, which only happens when the store drops writes.
	ErrNoKey = errors.New("signing: no signing key available")
)

// DefaultRotation is the key lifetime used when none is configured.
const DefaultRotation = 24 * time.Hour

var algorithms = map[string]func() hash.Hash{
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
}

// Service signs and verifies payloads with the keys held in its store.
// It is safe for concurrent use.
type Service struct {
	store    KeyStore
	algo     string
	newHash  func() hash.Hash
	rotation time.Duration
	random   io.Reader
	newID    func() string
	log      *zap.Logger
	onRotate func()
}

// Option customises a Service.
type Option func(*Service)

// WithAlgorithm selects the digest; see algorithms for the supported names.
func WithAlgorithm(name string) Option { return func(s *Service) { s.algo = name } }

// WithRotation sets the key lifetime.  The previous key is kept for
// twice this duration.
func WithRotation(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rotation = d
		}
	}
}

// WithRandom replaces crypto/rand as the key material source.
func WithRandom(r io.Reader) Option { return func(s *Service) { s.random = r } }

// WithKeyID replaces the key id generator.
func WithKeyID(f func() string) Option { return func(s *Service) { s.newID = f } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithRotateHook registers a callback invoked after every successful rotation.
func WithRotateHook(f func()) Option { return func(s *Service) { s.onRotate = f } }

// New builds a Service on top of store.
func New(store KeyStore, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		algo:     "sha256",
		rotation: DefaultRotation,
		random:   rand.Reader,
		newID:    uuid.NewString,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	h, ok := algorithms[s.algo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s.algo)
	}
	s.newHash = h
	return s, nil
}

// Algorithm returns the configured digest name.
func (s *Service) Algorithm() string { return s.algo }

// Sign returns the lowercase hex HMAC of the canonical encoding of
// payload under the current key, generating a key first if none exists.
func (s *Service) Sign(ctx context.Context, payload any) (string, error) {
	msg, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	ks, err := s.keys(ctx)
	if err != nil {
		return "", err
	}
	return s.mac(ks.Current, msg), nil
}

// Verify reports whether sig matches payload under the current key or,
// failing that, the previous key.
func (s *Service) Verify(ctx context.Context, payload any, sig string) (bool, error) {
	msg, err := Canonicalize(payload)
	if err != nil {
		return false, err
	}
	ks, err := s.keys(ctx)
	if err != nil {
		return false, err
	}
	if hmac.Equal([]byte(s.mac(ks.Current, msg)), []byte(sig)) {
		return true, nil
	}
	if ks.Previous != "" && hmac.Equal([]byte(s.mac(ks.Previous, msg)), []byte(sig)) {
		return true, nil
	}
	return false, nil
}

// RotateKey generates a fresh 256-bit key and makes it current.  The
// key it replaces becomes the previous key.
func (s *Service) RotateKey(ctx context.Context) error {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(s.random, raw); err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	id := s.newID()
	if err := s.store.Swap(ctx, id, hex.EncodeToString(raw), s.rotation, 2*s.rotation); err != nil {
		return err
	}
	s.log.Info("signing key rotated", zap.String("key_id", id), zap.Duration("ttl", s.rotation))
	if s.onRotate != nil {
		s.onRotate()
	}
	return nil
}

// RunRotation rotates the key every interval until ctx is cancelled.
func (s *Service) RunRotation(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.RotateKey(ctx); err != nil {
				s.log.Error("scheduled key rotation failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) keys(ctx context.Context) (KeySet, error) {
	ks, err := s.store.Current(ctx)
	if err != nil {
		return ks, err
	}
	if ks.CurrentID != "" {
		return ks, nil
	}
	if err := s.RotateKey(ctx); err != nil {
		return ks, err
	}
	ks, err = s.store.Current(ctx)
	if err != nil {
		return ks, err
	}
	if ks.CurrentID == "" {
		return ks, ErrNoKey
	}
	return ks, nil
}

func (s *Service) mac(key string, msg []byte) string {
	m := hmac.New(s.newHash, []byte(key))
	m.Write(msg)
	return hex.EncodeToString(m.Sum(nil))
}

// Canonicalize encodes payload as compact JSON with object keys sorted
// and HTML escaping disabled, so a struct and an equivalent map yield
// the same bytes.
func Canonicalize(payload any) ([]byte, error) {
	first, err := encode(payload)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(first))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return encode(generic)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
