package knowledge

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZipUpload(t *testing.T, files map[string]string) *multipart.FileHeader {
	t.Helper()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "upload.zip")
	require.NoError(t, err)
	_, err = part.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["file"][0]
}

func TestExtractArchiveZip(t *testing.T) {
	header := buildZipUpload(t, map[string]string{
		"docs/readme.md":       "# readme",
		"docs/notes.txt":       "some notes",
		"binary.png":           "not text",
		"__MACOSX/.readme.md":  "resource fork junk",
		"nested/deep/file.log": "log line",
	})

	files, err := extractArchive(header)
	require.NoError(t, err)
	require.Len(t, files, 3)

	byName := make(map[string]string, len(files))
	for _, f := range files {
		byName[f.Name] = f.Content
	}
	assert.Equal(t, "# readme", byName["docs/readme.md"])
	assert.Equal(t, "some notes", byName["docs/notes.txt"])
	assert.Equal(t, "log line", byName["nested/deep/file.log"])
}

func TestExtractArchiveNoTextFiles(t *testing.T) {
	header := buildZipUpload(t, map[string]string{"image.png": "binary"})

	_, err := extractArchive(header)
	assert.Error(t, err)
}

func TestDetectArchiveFormat(t *testing.T) {
	zipMagic := []byte{0x50, 0x4b, 0x03, 0x04, 0, 0, 0, 0}
	rarMagic := []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x00, 0x00}

	writeTemp := func(data []byte) *os.File {
		f, err := os.CreateTemp(t.TempDir(), "archive-*")
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
		return f
	}

	format, err := detectArchiveFormat(writeTemp(nil), "bundle.zip")
	require.NoError(t, err)
	assert.Equal(t, archiveFormatZip, format)

	format, err = detectArchiveFormat(writeTemp(nil), "bundle.RAR")
	require.NoError(t, err)
	assert.Equal(t, archiveFormatRar, format)

	// No extension, magic bytes decide.
	format, err = detectArchiveFormat(writeTemp(zipMagic), "bundle")
	require.NoError(t, err)
	assert.Equal(t, archiveFormatZip, format)

	format, err = detectArchiveFormat(writeTemp(rarMagic), "bundle")
	require.NoError(t, err)
	assert.Equal(t, archiveFormatRar, format)

	_, err = detectArchiveFormat(writeTemp([]byte("plain text")), "bundle.tar.gz")
	assert.Error(t, err)
}

func TestSanitizeArchiveEntry(t *testing.T) {
	tests := []struct {
		in   string
		out  string
		fail bool
	}{
		{in: "docs/readme.md", out: "docs/readme.md"},
		{in: "./docs/readme.md", out: "docs/readme.md"},
		{in: `windows\path\file.txt`, out: "windows/path/file.txt"},
		{in: "__MACOSX/._junk", out: ""},
		{in: "  ", out: ""},
		{in: ".", out: ""},
		{in: "../escape.txt", fail: true},
		{in: "a/../../escape.txt", fail: true},
	}
	for _, tt := range tests {
		got, err := sanitizeArchiveEntry(tt.in)
		if tt.fail {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.out, got, tt.in)
	}
}

func TestMimeTypeForPath(t *testing.T) {
	assert.Equal(t, "text/markdown", mimeTypeForPath("a/b.md"))
	assert.Equal(t, "application/json", mimeTypeForPath("data.JSON"))
	assert.Equal(t, "text/plain", mimeTypeForPath("notes.txt"))
	assert.Equal(t, "text/plain", mimeTypeForPath("no-extension"))
}
