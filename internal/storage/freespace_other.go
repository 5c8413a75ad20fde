//go:build !linux && !darwin && !windows

package storage

import "errors"

func freeSpace(path string) (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}

func checkWritable(dir string) error {
	return nil
}
