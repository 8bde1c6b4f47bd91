// Package httpapi serves the user directory routes behind the request guard.
package httpapi
