// Package fetch acquires raw upstream material. Every operation tries the
// external command-line tool first (wget, unzip, git) and falls back to an
// in-process implementation when the tool is absent or fails, so hosts
// without those tools still produce the same files at the same paths.
package fetch
