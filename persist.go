package kmertab

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jcalabro/kmertab/internal/bucket"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// StdioPath names standard output for Dump and standard input for Restore.
const StdioPath = "-"

// maxReserveHint caps how many buckets a dump can make ReadFrom pre-allocate
// per shard. Larger shards still load; they grow while being filled.
const maxReserveHint = 1 << 22

// reserveHint bounds a shard's persisted bucket count by what its entry count
// could have grown to: a shard doubles once it is MaxLoad full, so it never
// holds more than 2/MaxLoad buckets per entry, with a floor of 8. Pre-sizing
// then costs at most a fixed multiple of the bytes the entries take in the
// stream.
func reserveHint(buckets, entries uint32) int {
	grown := max(int(2*float64(entries)/bucket.MaxLoad)+1, 8)
	return min(int(buckets), grown, maxReserveHint)
}

// WriteTo writes the table to w in the dump layout, all fields
// little-endian:
//
//	u32 k, u32 prefix bits
//	per shard, in index order:
//	  u32 bucket count, u32 entry count
//	  entry count × u64 stored key, in bucket order
//
// Inserts must not run concurrently with WriteTo.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64

	buf := make([]byte, 0, 8)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.k))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.prefixBits))
	m, err := bw.Write(buf)
	n += int64(m)
	if err != nil {
		return n, err
	}

	var keys []uint64
	for i := range t.shards {
		s := &t.shards[i].set
		keys = slices.AppendSeq(keys[:0], s.All())

		buf = binary.LittleEndian.AppendUint32(buf[:0], uint32(s.Cap()))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
		m, err = bw.Write(buf)
		n += int64(m)
		if err != nil {
			return n, err
		}

		for _, key := range keys {
			buf = binary.LittleEndian.AppendUint64(buf[:0], key)
			m, err = bw.Write(buf)
			n += int64(m)
			if err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// ReadFrom reads a table written by WriteTo. The stream must describe
// exactly the shard layout it was written with, and every key in a shard
// must be distinct; anything else is reported as ErrCorruptState.
func ReadFrom(r io.Reader, opts ...Option) (*Table, error) {
	br := bufio.NewReader(r)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrCorruptState, err)
	}
	k := binary.LittleEndian.Uint32(hdr[0:4])
	prefixBits := binary.LittleEndian.Uint32(hdr[4:8])
	if k > MaxK || prefixBits > MaxPrefixBits {
		return nil, fmt.Errorf("%w: header k=%d prefix bits=%d", ErrCorruptState, k, prefixBits)
	}

	t, err := New(int(k), int(prefixBits), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	if t.prefixBits != int(prefixBits) {
		return nil, fmt.Errorf("%w: prefix bits %d would be clamped to %d for k=%d", ErrCorruptState, prefixBits, t.prefixBits, k)
	}

	var word [8]byte
	for i := range t.shards {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: shard %d header: %w", ErrCorruptState, i, err)
		}
		buckets := binary.LittleEndian.Uint32(hdr[0:4])
		entries := binary.LittleEndian.Uint32(hdr[4:8])

		s := &t.shards[i].set
		s.Reserve(reserveHint(buckets, entries))
		for j := range entries {
			if _, err := io.ReadFull(br, word[:]); err != nil {
				return nil, fmt.Errorf("%w: shard %d entry %d: %w", ErrCorruptState, i, j, err)
			}
			key := binary.LittleEndian.Uint64(word[:])
			if key == 0 {
				return nil, fmt.Errorf("%w: shard %d entry %d is zero", ErrCorruptState, i, j)
			}
			if _, inserted := s.Put(key); !inserted {
				return nil, fmt.Errorf("%w: shard %d entry %d duplicates key %#x", ErrCorruptState, i, j, key)
			}
		}
	}
	return t, nil
}

// Dump writes the table to path, or to standard output if path is "-".
// A path ending in ".zst" or ".lz4" is compressed with zstd or lz4.
func (t *Table) Dump(path string) (err error) {
	start := time.Now()
	defer func() {
		t.metrics.RecordDump(time.Since(start), err)
		t.logger.LogDump(context.Background(), path, t.k, t.Len(), err)
	}()

	w, closeFn, err := createDump(path)
	if err != nil {
		return fmt.Errorf("kmertab: dump: %w", err)
	}
	if _, err = t.WriteTo(w); err != nil {
		_ = closeFn()
		return fmt.Errorf("kmertab: dump %s: %w", path, err)
	}
	if err = closeFn(); err != nil {
		return fmt.Errorf("kmertab: dump %s: %w", path, err)
	}
	return nil
}

// Restore reads a table dumped to path, or from standard input if path is
// "-". Compression is chosen by suffix as in Dump.
func Restore(path string, opts ...Option) (t *Table, err error) {
	o := applyOptions(opts)
	start := time.Now()
	defer func() {
		o.metrics.RecordRestore(time.Since(start), err)
		o.logger.LogRestore(context.Background(), path, t, err)
	}()

	r, closeFn, err := openDump(path)
	if err != nil {
		return nil, fmt.Errorf("kmertab: restore: %w", err)
	}
	defer closeFn()

	t, err = ReadFrom(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("kmertab: restore %s: %w", path, err)
	}
	return t, nil
}

func createDump(path string) (io.Writer, func() error, error) {
	if path == StdioPath {
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		return enc, closeBoth(enc.Close, f.Close), nil
	case strings.HasSuffix(path, ".lz4"):
		zw := lz4.NewWriter(f)
		return zw, closeBoth(zw.Close, f.Close), nil
	default:
		return f, f.Close, nil
	}
}

func openDump(path string) (io.Reader, func() error, error) {
	if path == StdioPath {
		return os.Stdin, func() error { return nil }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		return dec, func() error {
			dec.Close()
			return f.Close()
		}, nil
	case strings.HasSuffix(path, ".lz4"):
		return lz4.NewReader(f), f.Close, nil
	default:
		return f, f.Close, nil
	}
}

// closeBoth closes a compressor and then the file under it, returning the
// first error.
func closeBoth(inner, outer func() error) func() error {
	return func() error {
		err := inner()
		if cerr := outer(); err == nil {
			err = cerr
		}
		return err
	}
}
