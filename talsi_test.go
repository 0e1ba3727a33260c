package talsi_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akx/talsi"
)

type Profile struct {
	Name   string
	Scores map[int]float64
	Parent *Profile
}

type ProfilePair struct {
	A, B *Profile
}

func init() {
	talsi.RegisterType(Profile{})
	talsi.RegisterType(ProfilePair{})
}

func openStorage(t *testing.T, path string, mutate ...func(*talsi.Options)) *talsi.Storage {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "talsi.db")
	}
	opts := talsi.DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	s, err := talsi.Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func withGob(o *talsi.Options) { o.AllowGob = true }

func withCompression(c string) func(*talsi.Options) {
	return func(o *talsi.Options) { o.Compression = c }
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	large := strings.Repeat("talsi", 4000)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "string", value: "hello", want: "hello"},
		{name: "unicode", value: "héllo wörld 🌍", want: "héllo wörld 🌍"},
		{name: "bytes", value: []byte{0, 1, 2, 255}, want: []byte{0, 1, 2, 255}},
		{name: "int", value: 42, want: int64(42)},
		{name: "float", value: 3.25, want: 3.25},
		{name: "bool", value: false, want: false},
		{name: "nil", value: nil, want: nil},
		{name: "list", value: []any{1, "two", 3.5, nil}, want: []any{int64(1), "two", 3.5, nil}},
		{name: "dict", value: map[string]any{"a": map[string]any{"b": true}}, want: map[string]any{"a": map[string]any{"b": true}}},
		{name: "large string", value: large, want: large},
		{name: "large dict", value: map[string]any{"blob": large}, want: map[string]any{"blob": large}},
	}

	for _, compression := range []string{"none", "snappy", "zstd", "zstd:1", "zstd:19"} {
		s := openStorage(t, "", withCompression(compression))
		for _, tt := range tests {
			t.Run(compression+"/"+tt.name, func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "ns", tt.name, tt.value))

				got, found, err := s.Get(ctx, "ns", tt.name)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestStorage_GetMissing(t *testing.T) {
	s := openStorage(t, "")

	v, found, err := s.Get(context.Background(), "ns", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)

	has, err := s.Has(context.Background(), "ns", "missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStorage_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	require.NoError(t, s.Set(ctx, "a", "k", "v1"))
	require.NoError(t, s.Set(ctx, "b", "k", "v2"))

	got, _, err := s.Get(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	got, _, err = s.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	n, err := s.Delete(ctx, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := s.Has(ctx, "b", "k")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStorage_SpecialNamespaces(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	namespaces := []string{"", "select", "drop table entries;--", "with space", "quote'\"", "名前空間", "a.b-c/d"}
	for i, ns := range namespaces {
		require.NoError(t, s.Set(ctx, ns, "k", i), "namespace %q", ns)
	}

	for i, ns := range namespaces {
		got, found, err := s.Get(ctx, ns, "k")
		require.NoError(t, err)
		require.True(t, found, "namespace %q", ns)
		assert.Equal(t, int64(i), got)
	}

	listed, err := s.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, namespaces, listed)
}

func TestStorage_InvalidUTF8(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")
	bad := string([]byte{0xff, 0xfe})

	require.ErrorIs(t, s.Set(ctx, bad, "k", 1), talsi.ErrSerialization)
	require.ErrorIs(t, s.Set(ctx, "ns", bad, 1), talsi.ErrSerialization)

	_, _, err := s.Get(ctx, "ns", bad)
	require.ErrorIs(t, err, talsi.ErrSerialization)

	_, err = s.Rename(ctx, "ns", map[string]string{"a": bad}, talsi.DefaultRenameOptions())
	require.ErrorIs(t, err, talsi.ErrSerialization)
}

func TestStorage_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	require.NoError(t, s.SetTTL(ctx, "ns", "ephemeral", "gone", time.Millisecond))
	require.NoError(t, s.SetTTL(ctx, "ns", "durable", "here", time.Hour))
	time.Sleep(5 * time.Millisecond)

	_, found, err := s.Get(ctx, "ns", "ephemeral")
	require.NoError(t, err)
	assert.False(t, found)

	has, err := s.Has(ctx, "ns", "ephemeral")
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := s.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"durable"}, keys)

	// The row is still there until swept.
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ExpiredEntries)

	swept, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
}

func TestStorage_VeryLongTTL(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	require.NoError(t, s.SetTTL(ctx, "ns", "k", "v", 250*365*24*time.Hour))

	has, err := s.Has(ctx, "ns", "k")
	require.NoError(t, err)
	assert.True(t, has)

	v, found, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", v)
}

func TestStorage_SetClearsTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := openStorage(t, "", func(o *talsi.Options) { o.Clock = func() time.Time { return now } })

	require.NoError(t, s.SetTTL(ctx, "ns", "k", 1, time.Minute))
	entry, found, err := s.GetEntry(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, now.Add(time.Minute), entry.ExpiresAt.UTC())

	require.NoError(t, s.Set(ctx, "ns", "k", 2))
	entry, _, err = s.GetEntry(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Nil(t, entry.ExpiresAt)

	now = now.Add(time.Hour)
	got, found, err := s.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), got)
}

func TestStorage_SetManyAtomic(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	_, err := s.SetMany(ctx, "ns", map[string]any{
		"a":   1,
		"b":   "two",
		"bad": make(chan int),
		"z":   []any{3},
	})
	require.ErrorIs(t, err, talsi.ErrSerialization)

	keys, err := s.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, keys, "no part of a failed batch is visible")

	n, err := s.SetMany(ctx, "ns", map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SetManyTTL(ctx, "tmp", map[string]any{"x": 1}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorage_GetManyOmitsMissing(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	require.NoError(t, s.Set(ctx, "ns", "present", "here"))

	got, err := s.GetMany(ctx, "ns", []string{"present", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"present": "here"}, got)

	got, err = s.GetMany(ctx, "ns", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_HasMany(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	_, err := s.SetMany(ctx, "ns", map[string]any{"a": 1, "c": 3})
	require.NoError(t, err)

	got, err := s.HasMany(ctx, "ns", []string{"c", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestStorage_ListKeysLike(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	_, err := s.SetMany(ctx, "ns", map[string]any{"user:1": 1, "user:2": 2, "order:1": 3})
	require.NoError(t, err)

	keys, err := s.ListKeysLike(ctx, "ns", "user:%")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	keys, err = s.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"order:1", "user:1", "user:2"}, keys)
}

func TestStorage_DeleteMany(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	_, err := s.SetMany(ctx, "ns", map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	n, err := s.DeleteMany(ctx, "ns", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Delete(ctx, "ns", "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStorage_Rename(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	_, err := s.SetMany(ctx, "ns", map[string]any{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)

	n, err := s.Rename(ctx, "ns", map[string]string{"a": "x", "b": "y"}, talsi.DefaultRenameOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetMany(ctx, "ns", []string{"a", "b", "c", "x", "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": int64(3), "x": int64(1), "y": int64(2)}, got)

	_, err = s.Rename(ctx, "ns", map[string]string{"x": "y"}, talsi.DefaultRenameOptions())
	require.ErrorIs(t, err, talsi.ErrKeyExists)
	assert.Contains(t, err.Error(), "already exists")

	_, err = s.RenameKey(ctx, "ns", "missing", "z", talsi.DefaultRenameOptions())
	require.ErrorIs(t, err, talsi.ErrKeyNotFound)
	assert.Contains(t, err.Error(), "does not exist")

	ok, err := s.RenameKey(ctx, "ns", "missing", "z", talsi.RenameOptions{MustExist: false})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RenameKey(ctx, "ns", "x", "y", talsi.RenameOptions{Overwrite: true, MustExist: true})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetMany(ctx, "ns", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"y": int64(1)}, got)
}

func TestStorage_RenameKeepsLargeCompressedValue(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "", withCompression("zstd:7"))
	large := strings.Repeat("x", 10000)

	require.NoError(t, s.Set(ctx, "ns", "old", large))
	_, err := s.Rename(ctx, "ns", map[string]string{"old": "new"}, talsi.DefaultRenameOptions())
	require.NoError(t, err)

	entry, found, err := s.GetEntry(ctx, "ns", "new")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, large, entry.Value)
	assert.Equal(t, "zstd:7", entry.Compression)
	assert.Less(t, entry.Size, len(large))
}

func TestStorage_ForwardCompatibleCompression(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "talsi.db")
	value := map[string]any{"text": strings.Repeat("lorem ipsum ", 500)}

	w, err := talsi.Open(path, talsi.Options{Compression: "zstd:5"})
	require.NoError(t, err)
	require.NoError(t, w.Set(ctx, "ns", "k", value))
	require.NoError(t, w.Close())

	r := openStorage(t, path)
	assert.Equal(t, "snappy", r.Compression())

	got, found, err := r.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)

	entry, _, err := r.GetEntry(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "zstd:5", entry.Compression)
	assert.Equal(t, "json", entry.Format)
}

func TestStorage_GobTrust(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "talsi.db")
	value := Profile{Name: "ada", Scores: map[int]float64{1: 0.5}, Parent: &Profile{Name: "root"}}

	untrusted := openStorage(t, path)
	require.ErrorIs(t, untrusted.Set(ctx, "ns", "p", value), talsi.ErrSerialization)

	trusted := openStorage(t, path, withGob)
	require.NoError(t, trusted.Set(ctx, "ns", "p", value))

	got, found, err := trusted.Get(ctx, "ns", "p")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)

	var typed Profile
	found, err = trusted.GetInto(ctx, "ns", "p", &typed)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "root", typed.Parent.Name)

	_, _, err = untrusted.Get(ctx, "ns", "p")
	require.ErrorIs(t, err, talsi.ErrSerialization)
}

func TestStorage_CyclicValueRejected(t *testing.T) {
	s := openStorage(t, "", withGob)

	p := &Profile{Name: "loop"}
	p.Parent = p

	require.ErrorIs(t, s.Set(context.Background(), "ns", "p", p), talsi.ErrSerialization)
}

func TestStorage_GobFlattensSharedReferences(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "", withGob)

	shared := &Profile{Name: "shared"}
	require.NoError(t, s.Set(ctx, "ns", "pair", ProfilePair{A: shared, B: shared}))

	var got ProfilePair
	found, err := s.GetInto(ctx, "ns", "pair", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, *got.A, *got.B)
	assert.NotSame(t, got.A, got.B)
}

func TestStorage_GetInto(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	require.NoError(t, s.Set(ctx, "ns", "cfg", map[string]any{"host": "localhost", "port": 8080}))

	var cfg struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	found, err := s.GetInto(ctx, "ns", "cfg", &cfg)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)

	found, err = s.GetInto(ctx, "ns", "missing", &cfg)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpen_InvalidCompression(t *testing.T) {
	for _, c := range []string{"lz4", "zstd:0", "zstd:23", "zstd:x"} {
		_, err := talsi.Open(filepath.Join(t.TempDir(), "talsi.db"), talsi.Options{Compression: c})
		require.ErrorIs(t, err, talsi.ErrConfiguration, c)
	}
}

func TestStorage_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := talsi.Open(filepath.Join(t.TempDir(), "talsi.db"), talsi.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Set(ctx, "ns", "k", 1), talsi.ErrClosed)

	_, _, err = s.Get(ctx, "ns", "k")
	require.ErrorIs(t, err, talsi.ErrStorage)

	_, err = s.ListNamespaces(ctx)
	require.ErrorIs(t, err, talsi.ErrClosed)
}

func TestStorage_ConcurrentClose(t *testing.T) {
	opts := talsi.DefaultOptions()
	opts.SweepInterval = time.Millisecond
	s, err := talsi.Open(filepath.Join(t.TempDir(), "talsi.db"), opts)
	require.NoError(t, err)

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Close()
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.ErrorIs(t, s.Set(context.Background(), "ns", "k", 1), talsi.ErrClosed)
}

func TestStorage_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "talsi.db")
	shared := openStorage(t, path)
	other := openStorage(t, path)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := shared
			if w%2 == 1 {
				s = other
			}
			for i := range 25 {
				key := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, s.Set(ctx, "ns", key, i))
				_, _, err := s.Get(ctx, "ns", key)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	keys, err := shared.ListKeys(ctx, "ns")
	require.NoError(t, err)
	assert.Len(t, keys, 200)
}

func TestStorage_BackgroundSweep(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "", func(o *talsi.Options) { o.SweepInterval = 5 * time.Millisecond })

	require.NoError(t, s.SetTTL(ctx, "ns", "k", 1, time.Millisecond))

	require.Eventually(t, func() bool {
		stats, err := s.Stats(ctx)
		return err == nil && stats.ExpiredEntries == 0 && stats.LiveEntries == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScoped(t *testing.T) {
	ctx := context.Background()
	s := openStorage(t, "")

	counts := talsi.Scoped[int](s, "counts")
	require.NoError(t, counts.Set(ctx, "visits", 10))

	got, found, err := counts.Get(ctx, "visits")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 10, got)
	assert.Equal(t, "counts", counts.Namespace())
}

func TestWriteMetrics(t *testing.T) {
	s := openStorage(t, "")
	require.NoError(t, s.Set(context.Background(), "ns", "k", 1))
	_, _, _ = s.Get(context.Background(), "ns", string([]byte{0xff}))

	var buf bytes.Buffer
	talsi.WriteMetrics(&buf)

	out := buf.String()
	assert.Contains(t, out, `talsi_operations_total{op="set"}`)
	assert.Contains(t, out, `talsi_errors_total{op="get",class="serialization"}`)
	assert.Contains(t, out, "talsi_payload_bytes")
}

func TestStorage_Logging(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	s := openStorage(t, "", func(o *talsi.Options) { o.Logger = &logger })

	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"message":"storage opened"`)
	assert.Contains(t, out, `"component":"talsi"`)
	assert.Contains(t, out, `"op":"sweep"`)
}
