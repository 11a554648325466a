// Package crypto seals the journal record and backup files.
//
// Tokens are AES-256-GCM ciphertexts encoded as unpadded URL-safe base64:
//
//	[1-byte format][12-byte nonce][ciphertext + 16-byte tag]
//
// The key is derived once with Argon2id from an application passphrase and
// a fixed salt. It is an application constant, not a per-user secret: the
// threat model is data at rest on the owner's own device, and anyone with
// the binary can derive the same key.
//
// Integrity tags are SHA-256 hex digests.
package crypto
