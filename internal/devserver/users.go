package devserver

import (
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/vmarchenko/signon/internal/client/models"
	"github.com/vmarchenko/signon/internal/common"
)

// argon2id parameters for password hashing.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// user is one registered account. Credentials are kept in registration
// order.
type user struct {
	salt      []byte
	hash      []byte
	creds     []models.Credential
	challenge string
	revoked   bool
}

func hashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// userStore is the in-memory account registry of the development server.
type userStore struct {
	mu    sync.Mutex
	users map[string]*user
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]*user)}
}

// add registers an account, replacing any existing one with the same name.
func (s *userStore) add(username string, password []byte) {
	salt := common.GenerateRandByteArray(saltLen)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{salt: salt, hash: hashPassword(password, salt)}
}

func (s *userStore) exists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return ok && !u.revoked
}

func (s *userStore) isRevoked(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return !ok || u.revoked
}

// revoke terminates the user's sessions server-side. Subsequent tokened
// requests are answered with the signed-out code.
func (s *userStore) revoke(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.revoked = true
	}
}

func (s *userStore) checkPassword(username string, password []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false
	}
	candidate := hashPassword(password, u.salt)
	return subtle.ConstantTimeCompare(u.hash, candidate) == 1
}

func (s *userStore) credentials(username string) []models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil
	}
	return append([]models.Credential(nil), u.creds...)
}

func (s *userStore) addCredential(username string, c models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.creds = append(u.creds, c)
	}
}

func (s *userStore) removeCredential(username, credentialID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false
	}
	for i, c := range u.creds {
		if c.ID == credentialID {
			u.creds = append(u.creds[:i], u.creds[i+1:]...)
			return true
		}
	}
	return false
}

func (s *userStore) hasCredential(username, credentialID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return false
	}
	for _, c := range u.creds {
		if c.ID == credentialID {
			return true
		}
	}
	return false
}

// setChallenge stores the single outstanding challenge for the user; a new
// challenge invalidates the previous one.
func (s *userStore) setChallenge(username, challenge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.challenge = challenge
	}
}

// takeChallenge consumes the outstanding challenge.
func (s *userStore) takeChallenge(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ""
	}
	c := u.challenge
	u.challenge = ""
	return c
}
