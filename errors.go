package kmertab

import "errors"

var (
	// ErrWouldBlock is returned by a non-forced Insert when the k-mer's shard
	// is locked by another writer. Nothing was changed; the caller may retry,
	// skip the k-mer, or insert again with force set.
	ErrWouldBlock = errors.New("kmertab: shard is locked")

	// ErrInvalidParams is returned when a table cannot be built for the
	// requested k and shard prefix.
	ErrInvalidParams = errors.New("kmertab: invalid table parameters")

	// ErrCorruptState is returned when a dump stream is truncated or does not
	// describe a valid table: a clamped or out-of-range header, a zero key, or
	// a key repeated within a shard. No table is returned alongside it.
	ErrCorruptState = errors.New("kmertab: corrupt table dump")
)
