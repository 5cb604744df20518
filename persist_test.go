package kmertab

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// buildTable fills a table with n k-mers whose counts vary with their index.
func buildTable(t testing.TB, k, prefixBits, n int) *Table {
	t.Helper()
	tab := newTestTable(t, k, prefixBits)
	mask := uint64(1)<<k - 1
	for i := range uint64(n) {
		x0, x1 := (i*0x9e3779b9)&mask, (i*0x85ebca6b+7)&mask
		for j := range i%7 + 1 {
			mustInsert(t, tab, x0, x1, j%3 == 0)
		}
	}
	return tab
}

func shardKeys(tab *Table, i int) []uint64 {
	keys := slices.Collect(tab.shards[i].set.All())
	slices.Sort(keys)
	return keys
}

func assertSameTable(t *testing.T, got, want *Table) {
	t.Helper()
	if got.K() != want.K() || got.PrefixBits() != want.PrefixBits() {
		t.Fatalf("got k=%d prefix=%d, want k=%d prefix=%d", got.K(), got.PrefixBits(), want.K(), want.PrefixBits())
	}
	if got.Len() != want.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	for i := range want.shards {
		if !slices.Equal(shardKeys(got, i), shardKeys(want, i)) {
			t.Fatalf("shard %d keys differ", i)
		}
		if got.shards[i].set.Cap() != want.shards[i].set.Cap() {
			t.Errorf("shard %d has %d buckets, want %d", i, got.shards[i].set.Cap(), want.shards[i].set.Cap())
		}
	}
}

func TestPersistRoundtripEmpty(t *testing.T) {
	src := newTestTable(t, 31, 12)

	var buf bytes.Buffer
	n, err := src.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) || n != 8+8*4096 {
		t.Errorf("WriteTo reported %d bytes, buffer has %d", n, buf.Len())
	}

	restored, err := ReadFrom(&buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	assertSameTable(t, restored, src)
	if restored.Histogram().Mode != -1 {
		t.Error("restored empty table has a mode")
	}
}

func TestPersistRoundtripWithData(t *testing.T) {
	for _, tc := range []struct{ k, prefixBits int }{{21, 4}, {31, 12}, {33, 16}, {8, 0}} {
		src := buildTable(t, tc.k, tc.prefixBits, 3000)

		var buf bytes.Buffer
		if _, err := src.WriteTo(&buf); err != nil {
			t.Fatalf("k=%d: WriteTo: %v", tc.k, err)
		}
		restored, err := ReadFrom(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("k=%d: ReadFrom: %v", tc.k, err)
		}
		assertSameTable(t, restored, src)

		if restored.Histogram() != src.Histogram() {
			t.Errorf("k=%d: histograms differ after roundtrip", tc.k)
		}
	}
}

func TestPersistCanInsertAfterRestore(t *testing.T) {
	src := buildTable(t, 21, 4, 500)
	mustInsert(t, src, 0x100, 0x200, false)

	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	restored, err := ReadFrom(&buf)
	if err != nil {
		t.Fatal(err)
	}

	before := mustLookup(t, restored, 0x100, 0x200)
	mustInsert(t, restored, 0x100, 0x200, true)
	after := mustLookup(t, restored, 0x100, 0x200)
	if after.Low != before.Low+1 || after.High != before.High+1 {
		t.Errorf("update after restore: %+v -> %+v", before, after)
	}
	if restored.Len() != src.Len() {
		t.Errorf("updating an existing k-mer changed Len")
	}
}

func TestPersistDataFormat(t *testing.T) {
	tab := newTestTable(t, 4, 2)
	mustInsert(t, tab, 0b1011, 0b0110, false) // shard 2

	var buf bytes.Buffer
	if _, err := tab.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	if len(data) != 8+4*8+8 {
		t.Fatalf("dump is %d bytes, want %d", len(data), 8+4*8+8)
	}
	le := binary.LittleEndian
	if le.Uint32(data[0:]) != 4 || le.Uint32(data[4:]) != 2 {
		t.Errorf("header = %d,%d, want 4,2", le.Uint32(data[0:]), le.Uint32(data[4:]))
	}
	for _, off := range []int{8, 16} {
		if le.Uint64(data[off:]) != 0 {
			t.Errorf("empty shard header at %d is %#x", off, le.Uint64(data[off:]))
		}
	}
	if le.Uint32(data[24:]) != 4 || le.Uint32(data[28:]) != 1 {
		t.Errorf("shard 2 header = %d,%d, want 4,1", le.Uint32(data[24:]), le.Uint32(data[28:]))
	}
	if want := uint64(0b11_0110)<<CountBits | 1; le.Uint64(data[32:]) != want {
		t.Errorf("key = %#x, want %#x", le.Uint64(data[32:]), want)
	}
	if le.Uint64(data[40:]) != 0 {
		t.Errorf("shard 3 header is %#x", le.Uint64(data[40:]))
	}
}

func TestPersistIdempotent(t *testing.T) {
	tab := buildTable(t, 21, 3, 1000)

	var a, b bytes.Buffer
	if _, err := tab.WriteTo(&a); err != nil {
		t.Fatal(err)
	}
	if _, err := tab.WriteTo(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two dumps of the same table differ")
	}
}

// rawDump assembles a dump by hand: header words followed by shard words.
func rawDump(k, prefixBits uint32, shards ...[]uint64) []byte {
	le := binary.LittleEndian
	buf := le.AppendUint32(nil, k)
	buf = le.AppendUint32(buf, prefixBits)
	for _, keys := range shards {
		buf = le.AppendUint32(buf, 8)
		buf = le.AppendUint32(buf, uint32(len(keys)))
		for _, key := range keys {
			buf = le.AppendUint64(buf, key)
		}
	}
	return buf
}

func TestPersistCorrupt(t *testing.T) {
	valid := func() []byte {
		tab := buildTable(t, 21, 2, 100)
		var buf bytes.Buffer
		if _, err := tab.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{21, 0, 0}},
		{"truncated key", valid[:len(valid)-3]},
		{"missing shards", valid[:8]},
		{"k zero", rawDump(0, 0, nil)},
		{"k too long", rawDump(64, 0, nil)},
		{"prefix would be clamped", rawDump(31, 0, nil)},
		{"prefix too large", rawDump(4, 9)},
		{"zero key", rawDump(4, 0, []uint64{1<<CountBits | 1, 0})},
		{"duplicate key", rawDump(4, 0, []uint64{5<<CountBits | 1, 5<<CountBits | 3})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tab, err := ReadFrom(bytes.NewReader(tc.data))
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("err = %v, want ErrCorruptState", err)
			}
			if tab != nil {
				t.Error("expected no table alongside the error")
			}
		})
	}
}

func TestPersistReservesHint(t *testing.T) {
	data := rawDump(4, 0, []uint64{1<<CountBits | 1})
	tab, err := ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got := tab.shards[0].set.Cap(); got != 8 {
		t.Errorf("restored shard has %d buckets, want the hinted 8", got)
	}
}

func TestPersistBucketHintBoundedByEntries(t *testing.T) {
	// Every shard claims the largest bucket count but holds at most one entry.
	le := binary.LittleEndian
	data := le.AppendUint32(nil, 20)
	data = le.AppendUint32(data, 5)
	for i := range 32 {
		data = le.AppendUint32(data, 0xffffffff)
		if i == 0 {
			data = le.AppendUint32(data, 1)
			data = le.AppendUint64(data, 1<<CountBits|1)
		} else {
			data = le.AppendUint32(data, 0)
		}
	}

	tab, err := ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer tab.Close()

	if tab.Len() != 1 {
		t.Errorf("Len = %d, want 1", tab.Len())
	}
	for i := range tab.shards {
		if got := tab.shards[i].set.Cap(); got > 8 {
			t.Errorf("shard %d reserved %d buckets for a huge hint", i, got)
		}
	}
}

func TestReserveHint(t *testing.T) {
	tests := []struct {
		buckets, entries uint32
		want             int
	}{
		{0, 0, 0},
		{8, 1, 8},
		{0xffffffff, 0, 8},
		{0xffffffff, 1, 8},
		{0xffffffff, 1000, 2598},
		{4096, 1000, 2598},
		{2048, 1000, 2048},
		{0xffffffff, 0xffffffff, maxReserveHint},
	}
	for _, tc := range tests {
		if got := reserveHint(tc.buckets, tc.entries); got != tc.want {
			t.Errorf("reserveHint(%d, %d) = %d, want %d", tc.buckets, tc.entries, got, tc.want)
		}
	}
}

func TestDumpRestoreFiles(t *testing.T) {
	src := buildTable(t, 25, 6, 5000)
	dir := t.TempDir()

	for _, name := range []string{"counts.bin", "counts.bin.zst", "counts.bin.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := src.Dump(path); err != nil {
				t.Fatalf("Dump: %v", err)
			}
			restored, err := Restore(path)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			t.Cleanup(restored.Close)
			assertSameTable(t, restored, src)
		})
	}

	raw, err := os.ReadFile(filepath.Join(dir, "counts.bin"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, buf.Bytes()) {
		t.Error("uncompressed dump file differs from WriteTo output")
	}

	zst, err := os.ReadFile(filepath.Join(dir, "counts.bin.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(zst, raw) {
		t.Error(".zst dump was not compressed")
	}
}

func TestDumpRestoreStdio(t *testing.T) {
	src := buildTable(t, 21, 4, 1000)

	f, err := os.Create(filepath.Join(t.TempDir(), "stdio.bin"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	stdout, stdin := os.Stdout, os.Stdin
	t.Cleanup(func() { os.Stdout, os.Stdin = stdout, stdin })

	os.Stdout = f
	if err := src.Dump(StdioPath); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	os.Stdout = stdout

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	os.Stdin = f
	restored, err := Restore(StdioPath)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	t.Cleanup(restored.Close)
	assertSameTable(t, restored, src)
}

func TestRestoreMissingFile(t *testing.T) {
	_, err := Restore(filepath.Join(t.TempDir(), "nope.bin"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
	if errors.Is(err, ErrCorruptState) {
		t.Error("a missing file is not corruption")
	}
}

func TestDumpUnwritablePath(t *testing.T) {
	tab := newTestTable(t, 21, 2)
	err := tab.Dump(filepath.Join(t.TempDir(), "no", "such", "dir.bin"))
	if err == nil {
		t.Fatal("expected an error for a path in a missing directory")
	}
}

func TestDumpRestoreLoggingAndMetrics(t *testing.T) {
	var logs bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&logs, nil))
	m := &BasicMetricsCollector{}

	tab := newTestTable(t, 21, 2, WithLogger(logger), WithMetrics(m))
	mustInsert(t, tab, 1, 2, false)

	path := filepath.Join(t.TempDir(), "t.bin")
	if err := tab.Dump(path); err != nil {
		t.Fatal(err)
	}
	restored, err := Restore(path, WithLogger(logger), WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()

	if _, err := Restore(path+".missing", WithLogger(logger), WithMetrics(m)); err == nil {
		t.Fatal("expected restore of a missing file to fail")
	}

	out := logs.String()
	for _, want := range []string{"dumped the count table", "restored the count table", "restore failed", "entries=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if m.Dumps.Load() != 1 || m.Restores.Load() != 2 || m.RestoreErrs.Load() != 1 {
		t.Errorf("dumps=%d restores=%d restore errors=%d", m.Dumps.Load(), m.Restores.Load(), m.RestoreErrs.Load())
	}
}

func FuzzReadFrom(f *testing.F) {
	tab, err := New(6, 2)
	if err != nil {
		f.Fatal(err)
	}
	for i := range uint64(40) {
		_ = tab.Insert(i, i*5, i%2 == 0, true)
	}
	var buf bytes.Buffer
	if _, err := tab.WriteTo(&buf); err != nil {
		f.Fatal(err)
	}
	f.Add(buf.Bytes())
	f.Add(rawDump(4, 0, []uint64{1<<CountBits | 1}))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) >= 8 {
			k := binary.LittleEndian.Uint32(data[0:4])
			p := binary.LittleEndian.Uint32(data[4:8])
			// Keep shard arrays small.
			if p > 10 || (k <= MaxK && ClampPrefixBits(int(k), int(p)) > 10) {
				t.Skip()
			}
		}

		restored, err := ReadFrom(bytes.NewReader(data))
		if err != nil {
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}

		var out bytes.Buffer
		if _, err := restored.WriteTo(&out); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		again, err := ReadFrom(&out)
		if err != nil {
			t.Fatalf("re-reading a dump of a restored table: %v", err)
		}
		if again.Len() != restored.Len() {
			t.Fatalf("Len changed across roundtrip: %d -> %d", restored.Len(), again.Len())
		}
	})
}
