package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"metrics/2024/05/01/score.csv", "text/csv"},
		{"metrics/2024/05/01/aggregate.json", "application/json"},
		{"metrics/2024/05/01/report.HTML", "text/html; charset=utf-8"},
		{"notes.txt", "text/plain; charset=utf-8"},
		{"blob", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentTypeFor(tt.name))
		})
	}
}

func TestDir_PutGetRoundTrip(t *testing.T) {
	d := NewDir(t.TempDir())
	ctx := context.Background()

	p, err := d.PutObject(ctx, "metrics/2024/05/01/score.csv", []byte("a,b\n"), "text/csv")
	require.NoError(t, err)
	assert.FileExists(t, p)

	got, err := d.GetObject(ctx, "metrics/2024/05/01/score.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(got))
}

func TestDir_GetMissing(t *testing.T) {
	d := NewDir(t.TempDir())
	_, err := d.GetObject(context.Background(), "nope.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDir_RejectsEscapingKeys(t *testing.T) {
	d := NewDir(t.TempDir())
	for _, key := range []string{"../x", "", "/etc/passwd", "a/../../b"} {
		_, err := d.PutObject(context.Background(), key, nil, "")
		assert.Error(t, err, key)
	}
}

func TestDir_ListKeys(t *testing.T) {
	d := NewDir(t.TempDir())
	ctx := context.Background()
	for _, k := range []string{
		"invoices/processed/2024/05/01/b/parsed.json",
		"invoices/processed/2024/05/01/a/parsed.json",
		"invoices/processed/2024/05/01/a/raw.pdf",
		"invoices/processed/2024/05/02/c/parsed.json",
	} {
		_, err := d.PutObject(ctx, k, []byte("{}"), "")
		require.NoError(t, err)
	}

	var keys []string
	for k, err := range d.ListKeys(ctx, "invoices/processed/2024/05/01/") {
		require.NoError(t, err)
		keys = append(keys, k)
	}
	assert.Equal(t, []string{
		"invoices/processed/2024/05/01/a/parsed.json",
		"invoices/processed/2024/05/01/a/raw.pdf",
		"invoices/processed/2024/05/01/b/parsed.json",
	}, keys)
}

func TestDir_ListKeysStopsOnBreak(t *testing.T) {
	d := NewDir(t.TempDir())
	ctx := context.Background()
	for _, k := range []string{"a.json", "b.json", "c.json"} {
		_, err := d.PutObject(ctx, k, []byte("{}"), "")
		require.NoError(t, err)
	}

	var seen int
	for _, err := range d.ListKeys(ctx, "") {
		require.NoError(t, err)
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestDir_ListKeysMissingRoot(t *testing.T) {
	d := NewDir(t.TempDir() + "/missing")
	var errs int
	for _, err := range d.ListKeys(context.Background(), "") {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestDir_Location(t *testing.T) {
	d := NewDir("/data/out")
	assert.Equal(t, "file:///data/out/metrics/2024/05/01/", d.Location("metrics/2024/05/01/"))
}
