/*
Package archive packages export files into a single deflate zip using
klauspost/compress.

The archive is the artifact most tenants actually download: one file per
day holding the CSV tables, the manifest and the checksums file. The PDF
report is a separate artifact listed in the manifest; it is not repeated
inside the zip.

# Layout

	cleandoc_export_<date>.zip
	├── cleandoc_logs_<date>_v1.csv
	├── cleandoc_log_steps_<date>_v1.csv
	├── cleandoc_log_photos_<date>_v1.csv
	├── cleandoc_manifest_<date>.json
	└── cleandoc_checksums_<date>.txt

Entries keep their input order. The orchestrator passes the tables first
and the manifest and checksums last, so a reader listing the archive sees
the data before its description.

# Reproducibility

Every entry shares one fixed modification time, the export's generation
time, and no other header field varies between runs. Rebuilding an export
from the same files therefore yields a byte-identical archive with the
same SHA-256, which lets a recipient compare two deliveries by hash.

Build rejects an entry without a name and duplicate names, since either
would produce an archive whose contents disagree with the manifest.

# Usage

	zipped, err := archive.Build("2026-03-01", []archive.File{
		{Name: "cleandoc_logs_2026-03-01_v1.csv", Data: logs},
		{Name: "cleandoc_manifest_2026-03-01.json", Data: manifest},
	}, generatedAt)
	if err != nil {
		return err
	}
	fmt.Println(zipped.FileName, zipped.SHA256)

Extract reads every entry back into memory, keyed by name, which is
enough to check an archive against its own checksums file:

	files, err := archive.Extract(zipped.Data)
	if err != nil {
		return err
	}
	mismatches, err := manifest.Verify(files["cleandoc_checksums_2026-03-01.txt"], files)
*/
package archive
