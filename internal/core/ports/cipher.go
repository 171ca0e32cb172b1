package ports

// SymmetricCipher is a stateless encrypt/decrypt primitive keyed by a
// process-wide secret held by the implementation. Decrypt failures wrap
// domain.ErrEncryption so callers can degrade a single field instead of
// failing a whole read.
type SymmetricCipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}
