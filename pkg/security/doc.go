/*
Package security provides the cryptographic primitives of the export pipeline.

Nothing here holds state or reads configuration: callers pass keys, secrets
and directories in, which keeps every primitive testable on its own.

	┌──────────────────┬──────────────────────┬──────────────────────────┐
	│ Primitive        │ Algorithm            │ Used by                  │
	├──────────────────┼──────────────────────┼──────────────────────────┤
	│ Cipher           │ AES-256-GCM          │ local object store       │
	│ key derivation   │ HKDF-SHA256          │ NewCipherFromPassphrase  │
	│ Sign / Verify    │ HMAC-SHA256          │ webhook delivery         │
	│ server cert      │ RSA 2048 self-signed │ API over TLS             │
	└──────────────────┴──────────────────────┴──────────────────────────┘

# At-rest Encryption

Cipher wraps AES-256-GCM. Encrypt returns nonce || ciphertext with a fresh
random nonce per call and binds the object key as additional authenticated
data, so an encrypted blob copied to another key fails to decrypt. The local
object store backend seals every artifact with it before writing to disk.

	c, err := security.NewCipherFromPassphrase(cfg.ObjectStore.EncryptionKey)
	sealed, err := c.Encrypt(data, key)
	plain, err := c.Decrypt(sealed, key)

Stored layout of one object:

	┌────────────┬──────────────────────────────┬──────────┐
	│ nonce (12) │ ciphertext (len(plaintext))  │ tag (16) │
	└────────────┴──────────────────────────────┴──────────┘

NewCipherFromPassphrase derives the 32 byte key with HKDF-SHA256 under a
fixed salt, so the same passphrase always opens the same store. Use
NewCipher when a raw key is available; it rejects keys of any other length.
An empty passphrase is an error.

# Webhook Signatures

Webhook deliveries carry an HMAC-SHA256 of the raw request body, hex
encoded and prefixed with "sha256=":

	X-CleaniDoc-Signature: sha256=5d41402abc4b2a76b9719d911017c592...

A receiver recomputes the digest over the body bytes exactly as received,
before any JSON decoding. VerifySignature does this in constant time and
returns false for a missing prefix or a digest that is not hex.

	if !security.VerifySignature(secret, body, r.Header.Get("X-CleaniDoc-Signature")) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

# API Certificates

When the API is served over TLS without an operator supplied key pair,
LoadOrCreateServerCert keeps a self-signed certificate in the data
directory:

	<data_dir>/tls/server.crt   PEM, 90 days, SANs from hosts
	<data_dir>/tls/server.key   PEM, RSA 2048, mode 0600

It loads the pair when present and regenerates it once fewer than 30 days
remain (CertNeedsRotation). A pair that exists but cannot be parsed is an
error rather than being silently replaced.

	cert, err := security.LoadOrCreateServerCert(filepath.Join(dataDir, "tls"), hosts)
	srv.TLSConfig = security.ServerTLSConfig(cert)

ServerTLSConfig requires TLS 1.2 or newer.
*/
package security
