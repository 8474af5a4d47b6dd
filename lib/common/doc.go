// Package common contains the logging setup shared by the engine and the
// command line tool. All packages log through dragonboat's logger facade;
// InitLoggers replaces its default backend with a compact line format.
package common
