package source

import "os"

// Granter acquires durable read access to a content reference.
type Granter interface {
	TryAcquire(location string) bool
}

// GranterFunc adapts a function to Granter.
type GranterFunc func(location string) bool

func (f GranterFunc) TryAcquire(location string) bool {
	return f(location)
}

// FileGranter grants a content reference when the local file it points to
// can be opened for reading.
type FileGranter struct{}

func (FileGranter) TryAcquire(location string) bool {
	path, ok := localPath(location)
	if !ok {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
