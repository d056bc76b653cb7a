// Package middleware provides HTTP middleware for the kubeconfig-sync status server.
package middleware
