// Package logging provides concrete implementations of the iamconn.Logger interface.
//
// ZapLogger is the production implementation; NullLogger discards everything.
package logging
