package webhook

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when the payload carries a different
// verification token than the one configured.
var ErrInvalidToken = errors.New("invalid verification token")

// Verifier checks and decrypts Lark event callbacks
type Verifier struct {
	verifyToken string
	encryptKey  string
}

// NewVerifier creates a new webhook verifier. Empty values disable the
// matching check.
func NewVerifier(verifyToken, encryptKey string) *Verifier {
	return &Verifier{
		verifyToken: verifyToken,
		encryptKey:  encryptKey,
	}
}

// envelope is the subset of a callback body the verifier inspects
type envelope struct {
	Encrypt   string `json:"encrypt"`
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Token     string `json:"token"`
	Header    struct {
		Token string `json:"token"`
	} `json:"header"`
}

func (e *envelope) token() string {
	if e.Header.Token != "" {
		return e.Header.Token
	}
	return e.Token
}

// VerifySignature checks X-Lark-Signature, the hex sha256 of
// timestamp + nonce + encrypt key + raw body.
func (v *Verifier) VerifySignature(timestamp, nonce, signature string, body []byte) bool {
	if v.encryptKey == "" {
		return true
	}
	h := sha256.New()
	h.Write([]byte(timestamp + nonce + v.encryptKey))
	h.Write(body)
	calculated := hex.EncodeToString(h.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(calculated), []byte(signature)) == 1
}

// Open returns the plaintext event of body, decrypting {"encrypt": ...}
// bodies with the configured key.
func (v *Verifier) Open(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse callback body: %w", err)
	}
	if env.Encrypt == "" {
		return body, nil
	}
	if v.encryptKey == "" {
		return nil, errors.New("encrypted callback received but no encrypt key is configured")
	}
	return v.Decrypt(env.Encrypt)
}

// Decrypt reverses Lark's AES-256-CBC event encryption. The key is the
// sha256 of the encrypt key and the IV is the first block.
func (v *Verifier) Decrypt(encrypted string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext has invalid length")
	}

	key := sha256.Sum256([]byte(v.encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := ciphertext[:aes.BlockSize]
	plaintext := make([]byte, len(ciphertext)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext[aes.BlockSize:])

	plaintext, err = unpad(plaintext)
	if err != nil {
		return nil, err
	}
	if !json.Valid(plaintext) {
		return nil, errors.New("decrypted payload is not JSON")
	}
	return plaintext, nil
}

// Challenge returns the echo value of a url_verification request. ok is
// false when the payload is not a challenge.
func (v *Verifier) Challenge(payload []byte) (challenge string, ok bool, err error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", false, fmt.Errorf("failed to parse event: %w", err)
	}
	if env.Type != "url_verification" {
		return "", false, nil
	}
	if err := v.checkToken(env.token()); err != nil {
		return "", true, err
	}
	return env.Challenge, true, nil
}

// VerifyToken checks the verification token carried by a decrypted event.
func (v *Verifier) VerifyToken(payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	return v.checkToken(env.token())
}

func (v *Verifier) checkToken(token string) error {
	if v.verifyToken == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.verifyToken)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
