package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ysrdora/nextframe/internal/domain/entity"
	"github.com/ysrdora/nextframe/internal/timecode"
)

//go:embed templates/contact_sheet.html.tmpl
var templateFS embed.FS

var sheetTemplate = template.Must(template.ParseFS(templateFS, "templates/contact_sheet.html.tmpl"))

const exportDateLayout = "January 2, 2006, 03:04 PM"

type sheetFrame struct {
	Src      template.URL
	Number   string
	Timecode string
	Download string
}

type sheetData struct {
	Title      string
	ExportDate string
	Frames     []sheetFrame
}

// ContactSheet renders self-contained HTML pages of frames.
type ContactSheet struct {
	now func() time.Time
}

func NewContactSheet() *ContactSheet {
	return &ContactSheet{now: time.Now}
}

// Write renders frames sorted by timestamp. Frames whose payload is not a
// PNG data URL are skipped.
func (c *ContactSheet) Write(w io.Writer, frames []entity.CapturedFrame, videoName string) error {
	data := sheetData{
		Title:      Title(videoName),
		ExportDate: c.now().Format(exportDateLayout),
	}
	for _, f := range byTimestamp(frames) {
		if !strings.HasPrefix(f.DataURL, "data:image/png;base64,") {
			continue
		}
		i := len(data.Frames)
		data.Frames = append(data.Frames, sheetFrame{
			// validated above, safe to emit as an img src
			Src:      template.URL(f.DataURL),
			Number:   fmt.Sprintf("%03d", i+1),
			Timecode: timecode.Format(f.Timestamp),
			Download: NumberedFilename(i),
		})
	}

	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render contact sheet: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Create renders the sheet to outputPath.
func (c *ContactSheet) Create(ctx context.Context, frames []entity.CapturedFrame, videoName, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create contact sheet file: %w", err)
	}
	defer file.Close()

	if err := c.Write(file, frames, videoName); err != nil {
		return err
	}
	return file.Close()
}
