// Package jobs orchestrates asynchronous search jobs run by the external
// provider: submission, polling to a terminal status, job listing, and the
// import of a completed job's results through the core batch importer.
//
// The Registry is the single owner of per-job state. Background poll loops
// started by Watch hold a cancel func in the registry and end on Forget,
// Close, a terminal status, or a provider "not found".
package jobs
