// Package middleware provides optional [router.Middleware] implementations:
// body limits, compression, CORS, static files, cookie, form and JSON body parsing,
// and access logging.
package middleware
