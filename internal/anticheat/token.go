// Package anticheat stamps every rendered action list with a token bound to the chat's
// current state generation, so a stale render cannot replay an outdated action.
package anticheat

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"golang.org/x/crypto/blake2b"
)

type chatState struct {
	generation uint64
	token      string
}

// Issuer tracks one generation per chat. Safe for concurrent use.
type Issuer struct {
	mu    sync.Mutex
	key   []byte
	chats map[models.ChatID]*chatState
}

// NewIssuer returns an issuer with a fresh random MAC key.
func NewIssuer() (*Issuer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating token key: %w", err)
	}
	return &Issuer{key: key, chats: make(map[models.ChatID]*chatState)}, nil
}

// mint derives an opaque token from chat, generation and a random nonce.
func (is *Issuer) mint(chat models.ChatID, generation uint64) (string, error) {
	mac, err := blake2b.New(16, is.key)
	if err != nil {
		return "", err
	}
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(chat))
	binary.BigEndian.PutUint64(buf[8:16], generation)
	if _, err := rand.Read(buf[16:]); err != nil {
		return "", err
	}
	mac.Write(buf[:])
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// state returns the chat's state, minting the first token lazily. Caller holds mu.
func (is *Issuer) state(chat models.ChatID) (*chatState, error) {
	st, ok := is.chats[chat]
	if ok {
		return st, nil
	}
	tok, err := is.mint(chat, 0)
	if err != nil {
		return nil, err
	}
	st = &chatState{token: tok}
	is.chats[chat] = st
	return st, nil
}

// Current returns the token for the chat's current generation.
func (is *Issuer) Current(chat models.ChatID) (string, error) {
	is.mu.Lock()
	defer is.mu.Unlock()
	st, err := is.state(chat)
	if err != nil {
		return "", err
	}
	return st.token, nil
}

// Generation returns the chat's current generation number.
func (is *Issuer) Generation(chat models.ChatID) uint64 {
	is.mu.Lock()
	defer is.mu.Unlock()
	if st, ok := is.chats[chat]; ok {
		return st.generation
	}
	return 0
}

// Advance moves the chat to a new generation, invalidating every earlier token, and returns
// the new token.
func (is *Issuer) Advance(chat models.ChatID) (string, error) {
	is.mu.Lock()
	defer is.mu.Unlock()
	st, err := is.state(chat)
	if err != nil {
		return "", err
	}
	tok, err := is.mint(chat, st.generation+1)
	if err != nil {
		return "", err
	}
	st.generation++
	st.token = tok
	return tok, nil
}

// Validate accepts only the token of the current generation.
func (is *Issuer) Validate(chat models.ChatID, token string) error {
	is.mu.Lock()
	defer is.mu.Unlock()
	st, ok := is.chats[chat]
	if !ok || token == "" {
		return game.ErrStaleToken
	}
	if subtle.ConstantTimeCompare([]byte(st.token), []byte(token)) != 1 {
		return game.ErrStaleToken
	}
	return nil
}

// Forget drops a chat, e.g. when its last session ended.
func (is *Issuer) Forget(chat models.ChatID) {
	is.mu.Lock()
	defer is.mu.Unlock()
	delete(is.chats, chat)
}
