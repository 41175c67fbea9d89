// Package integration provides integration tests for the wallet sync server.
// These tests run the complete server against a fake ledger gateway and
// exercise the sync lifecycle through the REST API.
package integration
