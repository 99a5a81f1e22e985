// Package secrets seals provider credentials before they reach the database.
//
// A sealed blob has the form "v1:<key id>:<base64(nonce || box)>" so keys can
// be rotated: new blobs use the current key, old blobs open with any key the
// Sealer still knows.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	blobVersion = "v1"
	nonceSize   = 24
	keySize     = 32
)

var (
	ErrMalformedBlob = errors.New("secrets: malformed sealed blob")
	ErrUnknownKey    = errors.New("secrets: unknown key id")
	ErrOpenFailed    = errors.New("secrets: unable to open sealed blob")
	ErrInvalidKey    = errors.New("secrets: key must be 32 bytes (raw or base64)")
)

// Sealer encrypts and decrypts credential blobs
type Sealer struct {
	currentID string
	keys      map[string]*[keySize]byte
}

// NewSealer creates a sealer that writes with keyID. The key may be given as
// 32 raw bytes or as standard base64 of 32 bytes.
func NewSealer(keyID, key string) (*Sealer, error) {
	k, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	if keyID == "" || strings.Contains(keyID, ":") {
		return nil, fmt.Errorf("secrets: invalid key id %q", keyID)
	}
	return &Sealer{
		currentID: keyID,
		keys:      map[string]*[keySize]byte{keyID: k},
	}, nil
}

// NewDevelopmentSealer derives a deterministic key from a passphrase. It must
// never be used with production data.
func NewDevelopmentSealer(passphrase string) *Sealer {
	sum := sha256.Sum256([]byte(passphrase))
	k := sum
	return &Sealer{
		currentID: "dev",
		keys:      map[string]*[keySize]byte{"dev": &k},
	}
}

// AddKey registers an older key so blobs sealed with it can still be opened
func (s *Sealer) AddKey(keyID, key string) error {
	k, err := parseKey(key)
	if err != nil {
		return err
	}
	s.keys[keyID] = k
	return nil
}

// KeyID returns the id used for new blobs
func (s *Sealer) KeyID() string {
	return s.currentID
}

// Seal encrypts plaintext with the current key
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("secrets: failed to read nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], plaintext, &nonce, s.keys[s.currentID])
	encoded := base64.StdEncoding.EncodeToString(box)

	return []byte(blobVersion + ":" + s.currentID + ":" + encoded), nil
}

// Open decrypts a blob produced by Seal
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	parts := strings.SplitN(string(blob), ":", 3)
	if len(parts) != 3 || parts[0] != blobVersion {
		return nil, ErrMalformedBlob
	}

	key, ok := s.keys[parts[1]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, parts[1])
	}

	box, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrMalformedBlob
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plaintext, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

func parseKey(key string) (*[keySize]byte, error) {
	raw := []byte(key)
	if len(raw) != keySize {
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil || len(decoded) != keySize {
			return nil, ErrInvalidKey
		}
		raw = decoded
	}
	var k [keySize]byte
	copy(k[:], raw)
	return &k, nil
}
