// Package export writes gallery frames out as a ZIP bundle or an HTML
// contact sheet.
package export

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Title is the video name without its extension.
func Title(videoName string) string {
	base := filepath.Base(videoName)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SafeName is Title with every character outside [A-Za-z0-9_-] replaced by "_".
func SafeName(videoName string) string {
	name := unsafeChars.ReplaceAllString(Title(videoName), "_")
	if name == "" {
		return "video"
	}
	return name
}

func BundleFilename(videoName string) string {
	return SafeName(videoName) + "_frames.zip"
}

func ContactSheetFilename(videoName string) string {
	return SafeName(videoName) + "_contact_sheet.html"
}

// NumberedFilename is the download name of the i-th (0-based) sheet frame.
func NumberedFilename(i int) string {
	return fmt.Sprintf("frame_%03d.png", i+1)
}

// byTimestamp returns a copy of frames in ascending timestamp order; equal
// timestamps keep their relative order.
func byTimestamp(frames []entity.CapturedFrame) []entity.CapturedFrame {
	sorted := append([]entity.CapturedFrame(nil), frames...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

// uniqueNames hands out each name once, suffixing repeats with _2, _3...
type uniqueNames map[string]int

func (u uniqueNames) next(name string) string {
	if u[name] == 0 {
		u[name] = 1
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		u[name]++
		candidate := fmt.Sprintf("%s_%d%s", stem, u[name], ext)
		if u[candidate] == 0 {
			u[candidate] = 1
			return candidate
		}
	}
}
