// Package cmd implements the command-line interface of imdb. It provides a
// hierarchical command structure to inspect and modify database files and
// to encode and decode DTLV records.
//
// The package is organized into several subpackages:
//
//   - db: Commands on a database file (info, class-create, insert, delete, scan, metrics, perf)
//   - dtlv: Commands for the DTLV codec (json, path, encode)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable with the IMDB_ prefix,
// e.g. IMDB_FILE=/tmp/objects.db or IMDB_LOG_LEVEL=debug. Variables are also
// read from .env and .env.local in the working directory.
//
// See imdb -help for a list of all commands.
package cmd
