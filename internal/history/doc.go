// Package history persists recording session outcomes in SQLite so
// past captures can be listed, inspected, and pruned from the CLI.
package history
