package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidKeySet = errors.New("invalid api key list")
)

// KeyRing verifies bearer keys of the form "creator.secret" against bcrypt
// hashes of the secret, one hash per creator.
type KeyRing struct {
	hashes map[string][]byte
}

// ParseKeyRing reads a comma separated "creator:bcrypt-hash" list.
func ParseKeyRing(list string) (*KeyRing, error) {
	ring := &KeyRing{hashes: map[string][]byte{}}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		creator, hash, ok := strings.Cut(entry, ":")
		creator = strings.TrimSpace(creator)
		hash = strings.TrimSpace(hash)
		if !ok || hash == "" {
			return nil, fmt.Errorf("%w: entry %q must be creator:hash", ErrInvalidKeySet, entry)
		}
		if err := validateCreator(creator); err != nil {
			return nil, err
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%w: hash for %s: %v", ErrInvalidKeySet, creator, err)
		}
		if _, dup := ring.hashes[creator]; dup {
			return nil, fmt.Errorf("%w: duplicate creator %s", ErrInvalidKeySet, creator)
		}
		ring.hashes[creator] = []byte(hash)
	}
	return ring, nil
}

// Len is the number of configured creators.
func (k *KeyRing) Len() int {
	if k == nil {
		return 0
	}
	return len(k.hashes)
}

// Creators lists the configured creators in order.
func (k *KeyRing) Creators() []string {
	if k == nil {
		return nil
	}
	out := make([]string, 0, len(k.hashes))
	for c := range k.hashes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Verify returns the creator a key belongs to.
func (k *KeyRing) Verify(key string) (string, error) {
	creator, secret, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || creator == "" || secret == "" || k == nil {
		return "", ErrUnauthorized
	}
	hash, ok := k.hashes[creator]
	if !ok {
		return "", ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return "", ErrUnauthorized
	}
	return creator, nil
}

// GenerateKey creates a random key for creator and the hash to configure.
func GenerateKey(creator string, cost int) (key, hash string, err error) {
	if err := validateCreator(creator); err != nil {
		return "", "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err = HashSecret(secret, cost)
	if err != nil {
		return "", "", err
	}
	return creator + "." + secret, hash, nil
}

// HashSecret hashes the secret part of a key. A cost of 0 uses bcrypt.DefaultCost.
func HashSecret(secret string, cost int) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidKeySet)
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

func validateCreator(creator string) error {
	if creator == "" {
		return fmt.Errorf("%w: creator is empty", ErrInvalidKeySet)
	}
	if strings.ContainsAny(creator, ".:, \t") {
		return fmt.Errorf("%w: creator %q contains a reserved character", ErrInvalidKeySet, creator)
	}
	return nil
}
