// Package core turns loosely structured client data into canonical records.
//
// Data arrives either as spreadsheet exports or as search results from the
// job provider. Both paths end in the same place:
//
//	text -> Parse -> NormalizeHeader/ResolveHeader -> MapRows -> preview
//	     -> operator confirmation -> BatchImporter -> RecordStore
//
//	PlaceResult -> PlaceToRecord -> BatchImporter -> RecordStore
//
// Parsing and mapping are pure and synchronous. Mapping is lenient: it drops
// rows without a name and coerces coordinates, but range checks and name
// validation happen in the BatchImporter, where each failure is recorded as a
// RowError and the remaining rows still go through.
//
// # Header resolution
//
// Column labels are matched against a static synonym table after
// normalization, so "Città", "citta" and " CITTA " all resolve to [FieldCity].
// Labels that resolve to nothing are reported in [ImportDiagnostics], never
// silently dropped from the parse.
//
// # Errors
//
// Technical errors are mapped to coded user messages by [MapError]:
// DB for persistence, VAL for validation, FILE for uploads, UPL for import
// sessions, JOB for search jobs.
package core
