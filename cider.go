/*
	Package cider holds the shared vocabulary for the cider tool:
	error categories and process exit codes.

	Cider archives the opensource.apple.com source releases into git
	repositories -- one commit per released version, trees rebuilt
	from the published tarballs.
*/
package cider

// ErrorCategory is used to mark the major kind of an error.
// All errors raised by cider packages are tagged with one of these
// categories via the errcat library; policy code switches on the
// category rather than on error types.
type ErrorCategory string

const (
	// ErrUsage means invalid arguments or nonsensical requests.
	ErrUsage ErrorCategory = "cider-usage-error"

	// ErrTransport means a network or HTTP failure while fetching
	// catalog pages or archives.  Not retried.
	ErrTransport ErrorCategory = "cider-transport-error"

	// ErrMalformedMetadata means a catalog page did not have the
	// structure we expected of it.  Fatal for that listing operation.
	ErrMalformedMetadata ErrorCategory = "cider-malformed-metadata"

	// ErrCorruptArchive means archive bytes could not be decoded as a
	// compressed tar stream.  Fatal for that archive's conversion.
	ErrCorruptArchive ErrorCategory = "cider-corrupt-archive"

	// ErrInvalidArchiveMode means a tar entry carried permission bits
	// that cannot be mapped to a supported tree entry mode.  Fatal for
	// that archive's conversion.
	ErrInvalidArchiveMode ErrorCategory = "cider-invalid-archive-mode"

	// ErrRepositoryWrite means the object store failed to persist a
	// blob, tree, commit, tag, or ref.  Fatal for the current run.
	ErrRepositoryWrite ErrorCategory = "cider-repository-write-error"

	// ErrCancelled means a context cancelled a long operation part-way.
	ErrCancelled ErrorCategory = "cider-cancelled"
)

// Exit codes for the cider command.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitError   ExitCode = 1
	ExitUsage   ExitCode = 2
)

// CategoryExitCode maps an error category to the exit code the CLI
// should terminate with.  Unknown categories map to ExitError.
func CategoryExitCode(category interface{}) ExitCode {
	switch category {
	case nil:
		return ExitSuccess
	case ErrUsage:
		return ExitUsage
	default:
		return ExitError
	}
}
