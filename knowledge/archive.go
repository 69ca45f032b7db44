package knowledge

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"strings"

	rardecode "github.com/nwaples/rardecode/v2"
)

const (
	maxArchiveBytes int64 = 100 * 1024 * 1024 // 100 MiB upper guard
	maxEntryBytes   int64 = 10 * 1024 * 1024

	archiveFormatZip = "zip"
	archiveFormatRar = "rar"
)

// extractedFile is one text file pulled out of an imported archive.
type extractedFile struct {
	Name    string
	Content string
}

// extractArchive unpacks the text files of a .zip or .rar upload. Each
// extracted file becomes one knowledge entry.
func extractArchive(fileHeader *multipart.FileHeader) ([]extractedFile, error) {
	if fileHeader == nil {
		return nil, errors.New("knowledge: archive file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxArchiveBytes {
		return nil, fmt.Errorf("knowledge: archive size exceeds %d bytes", maxArchiveBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("knowledge: open archive: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "knowledge-archive-*")
	if err != nil {
		return nil, fmt.Errorf("knowledge: create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(src, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("knowledge: copy archive: %w", err)
	}
	if written > maxArchiveBytes {
		return nil, fmt.Errorf("knowledge: archive size exceeds %d bytes", maxArchiveBytes)
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("knowledge: rewind temp file: %w", err)
	}
	format, err := detectArchiveFormat(tmpFile, fileHeader.Filename)
	if err != nil {
		return nil, err
	}

	var files []extractedFile
	switch format {
	case archiveFormatZip:
		files, err = extractZip(tmpFile, written)
	case archiveFormatRar:
		files, err = extractRar(tmpFile)
	default:
		err = errors.New("knowledge: unsupported archive format")
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("knowledge: archive contains no readable text files")
	}
	return files, nil
}

func extractZip(tmpFile *os.File, size int64) ([]extractedFile, error) {
	reader, err := zip.NewReader(tmpFile, size)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse archive: %w", err)
	}

	var files []extractedFile
	for _, file := range reader.File {
		sanitized, err := sanitizeArchiveEntry(file.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || file.FileInfo().IsDir() || !isTextPath(sanitized) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("knowledge: open entry %s: %w", sanitized, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("knowledge: read entry %s: %w", sanitized, err)
		}

		if content := strings.TrimSpace(string(data)); content != "" {
			files = append(files, extractedFile{Name: sanitized, Content: content})
		}
	}
	return files, nil
}

func extractRar(tmpFile *os.File) ([]extractedFile, error) {
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("knowledge: rewind temp file: %w", err)
	}
	rr, err := rardecode.NewReader(tmpFile)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse rar archive: %w", err)
	}

	var files []extractedFile
	for {
		header, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("knowledge: read rar entry: %w", err)
		}

		sanitized, err := sanitizeArchiveEntry(header.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || header.IsDir || !isTextPath(sanitized) {
			if !header.IsDir {
				if _, err := io.Copy(io.Discard, rr); err != nil {
					return nil, fmt.Errorf("knowledge: discard rar entry: %w", err)
				}
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(rr, maxEntryBytes))
		if err != nil {
			return nil, fmt.Errorf("knowledge: read rar entry %s: %w", sanitized, err)
		}
		if content := strings.TrimSpace(string(data)); content != "" {
			files = append(files, extractedFile{Name: sanitized, Content: content})
		}
	}
	return files, nil
}

func detectArchiveFormat(file *os.File, originalName string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(path.Ext(originalName)))
	switch ext {
	case ".zip":
		return archiveFormatZip, nil
	case ".rar":
		return archiveFormatRar, nil
	}

	var header [8]byte
	n, err := file.ReadAt(header[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("knowledge: read archive header: %w", err)
	}
	headerSlice := header[:n]

	if len(headerSlice) >= 2 && headerSlice[0] == 0x50 && headerSlice[1] == 0x4b {
		return archiveFormatZip, nil
	}
	if len(headerSlice) >= 6 && bytes.Equal(headerSlice[:6], []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07}) {
		return archiveFormatRar, nil
	}

	if ext != "" {
		return "", fmt.Errorf("knowledge: unsupported archive format %q", ext)
	}
	return "", errors.New("knowledge: unsupported archive format, only .zip and .rar are accepted")
}

func sanitizeArchiveEntry(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nil
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "." || normalized == "" {
		return "", nil
	}
	if strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("knowledge: archive entry %q uses parent traversal", name)
	}
	if strings.HasPrefix(strings.ToLower(normalized), "__macosx/") {
		return "", nil
	}
	return normalized, nil
}

// isTextPath reports whether an archive entry looks like a text document
// worth importing into the knowledge base.
func isTextPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".txt", ".md", ".markdown", ".rst", ".csv", ".json", ".yaml", ".yml", ".xml", ".html", ".htm", ".log":
		return true
	default:
		return false
	}
}

// mimeTypeForPath maps an imported file to the stored mime type.
func mimeTypeForPath(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".xml":
		return "application/xml"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}
