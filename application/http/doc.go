// Package http holds the message model of an HTTP/1.1 origin server
// together with the request head parser.
//
// Framing, serialization and dispatch live in sub packages:
//
// - [rawhttp/application/http/transfer]: chunked transfer coding
//
// - [rawhttp/application/http/wire]: request framing and response serialization
//
// - [rawhttp/application/http/router]: middleware pipeline and routing
//
// - [rawhttp/application/http/actor/server]: connection sessions and the accept loop
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
