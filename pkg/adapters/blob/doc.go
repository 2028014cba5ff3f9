// Package blob provides BlobStore implementations for job artifacts and step
// logs.
//
// Implementations:
//   - memory: in-process map, for tests and single-node runs
//   - s3: any S3-compatible object store
package blob
