// Package apperrors holds taskmaster's error classes and the process exit
// codes they map to.
//
// ConfigError marks bad flags or files. SampleError, StorageError and
// OperationDeniedError wrap their cause, so errors.Is and errors.As see
// through them.
package apperrors
