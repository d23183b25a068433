// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher turns plaintext secrets into stored verifiers and checks
// secrets against them.
type PasswordHasher interface {
	// Hash produces a self-describing verifier for the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the verifier.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// when the verifier is malformed.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether the verifier should be recomputed with
	// the hasher's current algorithm and parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2Params is the argon2id work factor.
type Argon2Params struct {
	Time    uint32 `json:"time" yaml:"time" koanf:"time" env:"TIME" jsonschema:"minimum=1"`
	Memory  uint32 `json:"memory_kib" yaml:"memory_kib" koanf:"memory_kib" env:"MEMORY_KIB" jsonschema:"minimum=8192"`
	Threads uint8  `json:"threads" yaml:"threads" koanf:"threads" env:"THREADS" jsonschema:"minimum=1"`
	SaltLen uint32 `json:"salt_len" yaml:"salt_len" koanf:"salt_len" env:"SALT_LEN" jsonschema:"minimum=16"`
	KeyLen  uint32 `json:"key_len" yaml:"key_len" koanf:"key_len" env:"KEY_LEN" jsonschema:"minimum=16"`
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024, // 64 MB
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate checks that the parameters are usable.
func (p Argon2Params) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 time must be at least 1")
	case p.Memory < 8*1024:
		return oops.Code("AUTH_INVALID_PARAMS").With("memory_kib", p.Memory).Errorf("argon2 memory must be at least 8192 KiB")
	case p.Threads == 0:
		return oops.Code("AUTH_INVALID_PARAMS").Errorf("argon2 threads must be at least 1")
	case p.SaltLen < 16:
		return oops.Code("AUTH_INVALID_PARAMS").With("salt_len", p.SaltLen).Errorf("argon2 salt must be at least 16 bytes")
	case p.KeyLen < 16:
		return oops.Code("AUTH_INVALID_PARAMS").With("key_len", p.KeyLen).Errorf("argon2 key must be at least 16 bytes")
	}
	return nil
}

// weakerThan reports whether any cost component of p is below other.
func (p Argon2Params) weakerThan(other Argon2Params) bool {
	return p.Time < other.Time ||
		p.Memory < other.Memory ||
		p.Threads < other.Threads ||
		p.KeyLen < other.KeyLen
}

// maxCostFactor bounds how much more expensive than the configured work
// factor a stored verifier may be before Verify refuses to run it.
const maxCostFactor = 16

// exceedsCeiling reports whether p costs more than maxCostFactor times base
// in time or memory.
func (p Argon2Params) exceedsCeiling(base Argon2Params) bool {
	return uint64(p.Time) > uint64(base.Time)*maxCostFactor ||
		uint64(p.Memory) > uint64(base.Memory)*maxCostFactor
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies legacy bcrypt verifiers so that they can be upgraded on
// the next successful login.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with a custom work factor.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the work factor used for new verifiers.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the verifier.
func (h *Argon2idHasher) Verify(password, hash string) (bool, error) {
	if isBcrypt(hash) {
		return verifyBcrypt(password, hash)
	}

	decoded, err := decodeArgon2id(hash)
	if err != nil {
		return false, err
	}
	if decoded.params.exceedsCeiling(h.params) {
		return false, oops.Code("AUTH_INVALID_HASH").
			With("time", decoded.params.Time).
			With("memory_kib", decoded.params.Memory).
			Errorf("verifier cost exceeds %dx the configured work factor", maxCostFactor)
	}

	computed := argon2.IDKey([]byte(password), decoded.salt,
		decoded.params.Time, decoded.params.Memory, decoded.params.Threads, decoded.params.KeyLen)

	return subtle.ConstantTimeCompare(decoded.key, computed) == 1, nil
}

// NeedsUpgrade returns true for bcrypt verifiers and for argon2id verifiers
// computed with a weaker work factor than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	if !strings.HasPrefix(hash, "$argon2id$") {
		return true
	}
	decoded, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	return decoded.params.weakerThan(h.params)
}

type argon2idVerifier struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

// decodeArgon2id parses a PHC-format argon2id string.
func decodeArgon2id(hash string) (*argon2idVerifier, error) {
	// Format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "invalid version")
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").With("version", version).Errorf("unsupported argon2 version")
	}

	var memory, time uint32
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "invalid parameters")
	}
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if time == 0 || memory == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid cost parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "invalid salt encoding")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrapf(err, "invalid hash encoding")
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid key length %d", len(key))
	}

	return &argon2idVerifier{
		params: Argon2Params{
			Time:    time,
			Memory:  memory,
			Threads: uint8(threads),
			SaltLen: uint32(len(salt)), //nolint:gosec // bounded by hash string length
			KeyLen:  uint32(len(key)),  //nolint:gosec // bounded above
		},
		salt: salt,
		key:  key,
	}, nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
}
