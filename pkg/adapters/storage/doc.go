// Package storage contains run report storage adapters: an in-memory store
// for tests and single-process use, and a Redis store for deployments.
package storage
