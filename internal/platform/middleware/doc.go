// Package middleware holds the chi-compatible HTTP middleware shared by all routes.
package middleware
