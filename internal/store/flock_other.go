//go:build !unix

package store

// fileLock is a no-op where flock(2) is unavailable; FileStore still
// serializes writers within one process.
type fileLock struct{}

func newFileLock(string) *fileLock { return &fileLock{} }

func (*fileLock) Lock() error   { return nil }
func (*fileLock) Unlock() error { return nil }
