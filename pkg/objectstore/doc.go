/*
Package objectstore is the object storage gateway of the export pipeline.

All artifact I/O goes through a Gateway, which adds the pipeline's
conventions on top of a pluggable Backend. The orchestrator uploads and
presigns through it, the retention job sweeps through it, the API serves
local downloads through it and the readiness check pings it.

# Architecture

	┌──────────── callers ─────────────────────────────────────┐
	│ export.Orchestrator   scheduler.RunRetention   api /ready │
	└──────────────────────────┬───────────────────────────────┘
	                           │
	┌──────────────────────────▼───────────────────────────────┐
	│                        Gateway                            │
	│  Key / Upload / Presign / Download / Verify /             │
	│  CleanupExpired / Ping                                    │
	│  • key layout   • sha256 + uploaded-at metadata           │
	│  • link TTL     • batched best-effort deletes             │
	└──────────────┬──────────────────────────────┬────────────┘
	               │ Backend                      │ Backend
	┌──────────────▼──────────────┐  ┌────────────▼─────────────┐
	│        LocalBackend         │  │         S3Backend        │
	│ AES-256-GCM files + sidecar │  │ minio-go, SSE-S3         │
	│ JWT links → /downloads/     │  │ native presigned GET     │
	└─────────────────────────────┘  └──────────────────────────┘

# Key Layout

Keys are laid out as

	<prefix>/<tenant>/<report date>/<file name>

for example exports/tenant-a/2026-03-01/cleandoc_export_2026-03-01.zip.
Re-running a date overwrites the same keys. A tenant's objects are the
keys under "<prefix>/<tenant>/", which is what a retention sweep lists.

Tenant ids are validated with types.ValidateTenantID before they reach a
key, so one tenant's prefix never contains another's. LocalBackend
additionally refuses keys holding ".." or ending in "/".

# Upload Metadata

Every upload is tagged with two metadata entries next to whatever the
caller passes:

	sha256        hex SHA-256 of the plaintext
	uploaded-at   RFC3339 upload time

Metadata keys are lowercased, since S3 folds user metadata keys and the
local backend should read back what S3 would. Verify re-reads an object,
hashes the plaintext and compares it with the sha256 entry, returning
ErrChecksumMismatch on a difference.

# Download Links

Presign returns a Link with the URL and its expiry. A non-positive TTL
falls back to the gateway default, 24 hours unless configured otherwise.
The download name sets the file name offered to the browser.

LocalBackend links point at the API's /downloads/<token> route. The token
is an HS256 JWT with issuer cleandoc-objectstore carrying the key, the
offered file name and the expiry; ParseDownloadToken verifies it before
the API streams the decrypted object.

S3Backend links are native presigned GET URLs with a
response-content-disposition override.

# Retention

CleanupExpired deletes a tenant's objects whose last modification is
older than its retention window:

 1. Validate the tenant id and require a positive retention.
 2. List every object under the tenant prefix.
 3. Select objects with LastModified before now minus the retention days.
 4. Delete them in batches of 1000, the S3 multi-object delete limit.
 5. Record per-key failures in the result and continue.

A cancelled context stops the sweep between batches and returns the
partial result with the context error. Deleted objects are counted in
cleandoc_retention_deleted_objects_total.

# Backends

LocalBackend keeps objects on the filesystem, sealed with AES-256-GCM
(pkg/security) with the object key as additional data, so a file copied
to another key fails to decrypt. A JSON metadata sidecar
(<object>.meta.json) holds the content type, size and metadata. Both are
written to a temporary file and renamed into place.

S3Backend targets any S3 compatible service through minio-go. Objects are
written with SSE-S3 server-side encryption. Missing objects map to
ErrNotFound.

	objectstore.driver = local   LocalBackend under objectstore.local_dir
	objectstore.driver = s3      S3Backend from objectstore.s3.*

# Usage

Building a gateway on the local backend:

	cipher, err := security.NewCipherFromPassphrase(cfg.ObjectStore.EncryptionKey)
	if err != nil {
		return err
	}
	backend, err := objectstore.NewLocalBackend("/var/lib/cleandoc/objects", cipher, signingKey, "https://cleandoc.example.com")
	if err != nil {
		return err
	}
	gw := objectstore.NewGateway(backend, "exports", 24*time.Hour)

Uploading and linking an artifact:

	key := gw.Key("tenant-a", "2026-03-01", "cleandoc_export_2026-03-01.zip")
	res, err := gw.Upload(ctx, key, data, "application/zip", nil)
	link, err := gw.Presign(ctx, res.Key, 0, "cleandoc_export_2026-03-01.zip")

Sweeping a tenant:

	res, err := gw.CleanupExpired(ctx, "tenant-a", 90)
	for key, msg := range res.Failed {
		log.Printf("could not delete %s: %s", key, msg)
	}

# Troubleshooting

A checksum mismatch from Verify on the local backend usually means the
encryption key changed; decryption would normally fail first, so a
mismatch with a successful decrypt points at the metadata sidecar.

Local download links stop working when objectstore.signing_key changes,
since old tokens no longer verify. Re-issue the links.

On S3, a retention sweep that deletes nothing while objects are clearly
old usually means LastModified was refreshed by a re-run.
*/
package objectstore
