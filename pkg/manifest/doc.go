/*
Package manifest builds the manifest and checksums files of an export.

Both files describe the other artifacts of one export so a recipient can
check what they received without access to the pipeline: the manifest
says what was produced and under which guarantees, the checksums file
lets standard tools confirm the bytes.

# Manifest

The manifest is a JSON document listing every artifact with its size,
content type, row count (tables only) and SHA-256, plus the compliance
block and the export summary counts:

	{
	  "schema_version": "1.0",
	  "export_id": "6f1c...",
	  "tenant_id": "tenant-a",
	  "report_date": "2026-03-01",
	  "generated_at": "2026-03-02T02:00:04Z",
	  "files": [
	    {
	      "name": "cleandoc_logs_2026-03-01_v1.csv",
	      "kind": "logs_csv",
	      "content_type": "text/csv; charset=utf-8",
	      "size_bytes": 18234,
	      "row_count": 42,
	      "sha256": "a04c...11"
	    }
	  ],
	  "compliance": {
	    "retention_days": 730,
	    "encrypted_at_rest": true,
	    "hash_algorithm": "SHA-256"
	  },
	  "summary": { "total_logs": 42, ... }
	}

Files appear in the order the artifacts were passed in. Build computes a
missing hash from the artifact's data and rejects an artifact whose
supplied hash disagrees with its data, so a hash can never describe bytes
other than the ones shipped.

# Checksums

The checksums file has one line per artifact in sha256sum format, sorted by
file name, and includes the manifest itself:

	3b1f...e9  cleandoc_daily_report_2026-03-01.pdf
	a04c...11  cleandoc_log_photos_2026-03-01_v1.csv
	...
	7d2e...0a  cleandoc_manifest_2026-03-01.json

Because the format matches sha256sum, a recipient can run

	sha256sum -c cleandoc_checksums_2026-03-01.txt

in a directory holding the extracted archive and the downloaded PDF.

# Verification

ParseChecksums reads a checksums file back into a name to hash map and
rejects malformed lines. Verify re-reads a checksums file and reports
every listed file that no longer matches; a listed file missing from the
input is reported with an empty Actual hash.

	mismatches, err := manifest.Verify(checksums, files)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		fmt.Printf("%s: expected %s, got %q\n", m.FileName, m.Expected, m.Actual)
	}

# Usage

	res, err := manifest.Build(manifest.Input{
		ExportID:        exportID,
		TenantID:        "tenant-a",
		ReportDate:      "2026-03-01",
		GeneratedAt:     time.Now(),
		RetentionDays:   730,
		EncryptedAtRest: true,
		Stats:           stats,
		Artifacts:       artifacts,
	})
	if err != nil {
		return err
	}
	upload(res.ManifestName, res.ManifestData)
	upload(res.ChecksumsName, res.ChecksumsData)
*/
package manifest
