package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/timecode"
)

const ManifestName = "manifest.csv"

var manifestHeader = []string{"index", "filename", "timestamp_seconds", "timecode"}

// WriteBundle writes frames, oldest first, plus a manifest as a ZIP archive.
func WriteBundle(ctx context.Context, w io.Writer, frames []entity.CapturedFrame) error {
	zw := zip.NewWriter(w)
	names := uniqueNames{}
	rows := [][]string{manifestHeader}
	modified := time.Now()

	for i, f := range byTimestamp(frames) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := names.next(filepath.Base(f.Filename))
		if err := addFrameToZip(zw, name, f, modified); err != nil {
			return fmt.Errorf("add %s to zip: %w", name, err)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			name,
			strconv.FormatFloat(f.Timestamp, 'f', 3, 64),
			timecode.Format(f.Timestamp),
		})
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: ManifestName, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	cw := csv.NewWriter(mw)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

// CreateBundle writes the bundle to outputPath.
func CreateBundle(ctx context.Context, frames []entity.CapturedFrame, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer file.Close()

	if err := WriteBundle(ctx, file, frames); err != nil {
		return err
	}
	return file.Close()
}

func addFrameToZip(zw *zip.Writer, name string, f entity.CapturedFrame, modified time.Time) error {
	payload, err := f.PNG()
	if err != nil {
		return err
	}

	// PNG is already compressed
	header := &zip.FileHeader{Name: name, Method: zip.Store, Modified: modified}
	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = writer.Write(payload)
	return err
}
