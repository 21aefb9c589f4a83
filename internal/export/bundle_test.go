package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

func pngFrame(name string, ts float64, payload string) entity.CapturedFrame {
	return entity.NewPNGFrame([]byte(payload), name, ts)
}

func readZip(t *testing.T, raw []byte) map[string]*zip.File {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	files := make(map[string]*zip.File)
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return files
}

func readEntry(t *testing.T, f *zip.File) []byte {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestWriteBundle(t *testing.T) {
	frames := []entity.CapturedFrame{
		pngFrame("REFRAME_END.png", 9.99, "end"),
		pngFrame("REFRAME_010512.png", 65.5, "mid"),
		pngFrame("REFRAME_START.png", 0, "start"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(context.Background(), &buf, frames))

	files := readZip(t, buf.Bytes())
	require.Len(t, files, 4)
	assert.Equal(t, []byte("start"), readEntry(t, files["REFRAME_START.png"]))
	assert.Equal(t, zip.Store, files["REFRAME_START.png"].Method)

	rows, err := csv.NewReader(bytes.NewReader(readEntry(t, files[ManifestName]))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"index", "filename", "timestamp_seconds", "timecode"},
		{"1", "REFRAME_START.png", "0.000", "00:00:00"},
		{"2", "REFRAME_END.png", "9.990", "00:09:23"},
		{"3", "REFRAME_010512.png", "65.500", "01:05:12"},
	}, rows)
}

func TestWriteBundleRenamesCollisions(t *testing.T) {
	frames := []entity.CapturedFrame{
		pngFrame("REFRAME_000000.png", 0, "one"),
		pngFrame("REFRAME_000000.png", 0.01, "two"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBundle(context.Background(), &buf, frames))

	files := readZip(t, buf.Bytes())
	assert.Equal(t, []byte("one"), readEntry(t, files["REFRAME_000000.png"]))
	assert.Equal(t, []byte("two"), readEntry(t, files["REFRAME_000000_2.png"]))
}

func TestWriteBundleEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(context.Background(), &buf, nil))

	files := readZip(t, buf.Bytes())
	require.Len(t, files, 1)
	assert.Contains(t, files, ManifestName)
}

func TestWriteBundleRejectsForeignPayload(t *testing.T) {
	frames := []entity.CapturedFrame{{DataURL: "data:image/jpeg;base64,AAAA", Filename: "x.jpg"}}

	err := WriteBundle(context.Background(), io.Discard, frames)
	assert.ErrorIs(t, err, entity.ErrNotPNGDataURL)
}

func TestWriteBundleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WriteBundle(ctx, io.Discard, []entity.CapturedFrame{pngFrame("a.png", 0, "a")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateBundleWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frames.zip")

	require.NoError(t, NewExporter().CreateBundle(context.Background(), []entity.CapturedFrame{pngFrame("a.png", 1, "a")}, out))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, readZip(t, raw), "a.png")
}
