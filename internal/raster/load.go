package raster

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads any registered image format and returns the raster and the
// format name reported by the decoder.
func Decode(r io.Reader) (*Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	out, err := FromImage(img)
	if err != nil {
		return nil, format, err
	}
	return out, format, nil
}

// Load loads an image from the specified path.
func Load(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Encode writes the image in the named format (png, jpeg, tiff or bmp).
func Encode(w io.Writer, img *Image, format string) error {
	if err := img.Validate(); err != nil {
		return err
	}
	goImg := img.ToImage()

	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, goImg)
	case "jpg", "jpeg":
		return jpeg.Encode(w, goImg, &jpeg.Options{Quality: 95})
	case "tif", "tiff":
		return tiff.Encode(w, goImg, &tiff.Options{Compression: tiff.Deflate})
	case "bmp":
		return bmp.Encode(w, goImg)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Save encodes the image to path, picking the format from the extension.
// The file is written next to its final location and renamed into place,
// so overwriting an input never leaves a truncated file behind.
func Save(path string, img *Image) error {
	format := FormatFromPath(path)
	if !IsWritableFormat(format) {
		return fmt.Errorf("unsupported output format for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".layeralign-*")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	tmpName := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, img, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatFromPath returns the lower-cased extension without the dot.
func FormatFromPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// SupportedFormats returns the list of readable image extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".tiff", ".tif", ".bmp"}
}

// IsSupportedFormat checks if the given path has a readable image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// IsWritableFormat reports whether Encode can produce the format.
func IsWritableFormat(format string) bool {
	switch strings.ToLower(format) {
	case "png", "jpg", "jpeg", "tif", "tiff", "bmp":
		return true
	}
	return false
}
