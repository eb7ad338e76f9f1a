// Package logging provides file-based structured logging with rotation
// for the cascade search engine. Every CLI command writes JSON logs to
// ~/.cascade-docs/logs/ at info level; --debug lowers the level to debug
// for troubleshooting.
//
// The CLI does not copy these logs to stderr.
package logging
