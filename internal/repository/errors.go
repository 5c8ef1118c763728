package repository

import "github.com/pkg/errors"

// ErrStorageUnavailable indicates the underlying database could not serve
// the operation (I/O failure, corruption, disk full). It is non-fatal to
// the capture path: callers degrade instead of aborting. Empty query
// results are never reported through this error.
var ErrStorageUnavailable = errors.New("storage unavailable")

func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrStorageUnavailable, "%s: %v", op, err)
}
