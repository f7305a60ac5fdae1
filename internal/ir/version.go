package ir

// Version constants reported by the CLI.
const (
	// SchemaVersion is the store schema version, recorded in PRAGMA user_version.
	SchemaVersion = 2

	// Version is the bylines release.
	Version = "0.1.0"
)
