// Package cipher defines the CryptoContext collaborator interface (spec.md
// §3) that a transmitted/received packet payload is optionally run through.
package cipher

// Cipher encrypts and decrypts packet payloads. The caller owns both the
// input and the returned buffer; implementations must return a fresh slice
// rather than mutating the input in place, mirroring the reference
// CryptoContext's "returned buffer is a fresh allocation" contract.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
