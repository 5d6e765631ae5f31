// Package uri implements the parts of Uniform Resource Identifier (URI)
// handling needed by an origin server: splitting a request target,
// percent-decoding and query-string parsing.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc3986
//
// - https://url.spec.whatwg.org/#urlencoded-parsing
package uri
