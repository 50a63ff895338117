// Package auth issues agent credentials and resolves API keys to agents.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	KeyPrefix   = "viz_"
	ClaimPrefix = "viz_claim_"
	CodePrefix  = "art-"

	claimAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var keyFormat = regexp.MustCompile(`^viz_[a-f0-9]{32}$`)

// ValidKeyFormat reports whether key looks like an issued API key.
func ValidKeyFormat(key string) bool { return keyFormat.MatchString(key) }

// Credentials are generated once at registration. APIKey is shown to the
// caller and never stored; only Hash and Lookup are persisted.
type Credentials struct {
	APIKey     string
	Hash       string
	Lookup     string
	ClaimCode  string
	ClaimToken string
}

// NewCredentials generates a fresh key, claim code and claim token.
func NewCredentials(cost int) (*Credentials, error) {
	key, err := randomHex(KeyPrefix)
	if err != nil {
		return nil, err
	}
	hash, err := Hash(key, cost)
	if err != nil {
		return nil, err
	}
	code, err := claimCode()
	if err != nil {
		return nil, err
	}
	token, err := randomHex(ClaimPrefix)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		APIKey:     key,
		Hash:       hash,
		Lookup:     Lookup(key),
		ClaimCode:  code,
		ClaimToken: token,
	}, nil
}

// ClaimURL is where a human owner confirms the agent.
func ClaimURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/claim/" + token
}

// Hash bcrypts key. A cost outside bcrypt's range uses the default.
func Hash(key string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(b), nil
}

// Verify compares key with a stored bcrypt hash.
func Verify(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// Lookup is the indexed SHA-256 digest used to find the agent row before
// the bcrypt check.
func Lookup(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func randomHex(prefix string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

func claimCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = claimAlphabet[int(v)%len(claimAlphabet)]
	}
	return CodePrefix + string(out), nil
}
