//go:build cgo

package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformArchive(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "linux-x64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "amd64", "osx-x86_64"},
		{"darwin", "arm64", "osx-arm64"},
	}
	for _, tt := range tests {
		got, err := platformArchive(tt.goos, tt.goarch)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := platformArchive("windows", "amd64")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", libraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", libraryName("darwin"))
	assert.Equal(t, "libonnxruntime.so", libraryName("plan9"))
}

func onnxArchive(t *testing.T, prefix string, withLib bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	add := func(hdr *tar.Header, body []byte) {
		hdr.Size = int64(len(body))
		require.NoError(t, tw.WriteHeader(hdr))
		if len(body) > 0 {
			_, err := tw.Write(body)
			require.NoError(t, err)
		}
	}

	add(&tar.Header{Name: prefix, Typeflag: tar.TypeDir, Mode: 0o755}, nil)
	add(&tar.Header{Name: "onnxruntime/include/api.h", Typeflag: tar.TypeReg, Mode: 0o644}, []byte("h"))
	if withLib {
		add(&tar.Header{Name: prefix + "libonnxruntime.so.1.23.0", Typeflag: tar.TypeReg, Mode: 0o644}, []byte("ELF"))
		add(&tar.Header{Name: prefix + "libonnxruntime.so", Typeflag: tar.TypeSymlink, Linkname: "libonnxruntime.so.1.23.0"}, nil)
	}
	add(&tar.Header{Name: prefix + "evil", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}, nil)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractLibraries(t *testing.T) {
	prefix := "onnxruntime-linux-x64-1.23.0/lib/"
	dir := t.TempDir()

	err := extractLibraries(bytes.NewReader(onnxArchive(t, prefix, true)), dir, prefix, "libonnxruntime.so")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "libonnxruntime.so"))
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(data))

	_, err = os.Lstat(filepath.Join(dir, "evil"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "api.h"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractLibraries_MissingLibrary(t *testing.T) {
	prefix := "onnxruntime-linux-x64-1.23.0/lib/"
	err := extractLibraries(bytes.NewReader(onnxArchive(t, prefix, false)), t.TempDir(), prefix, "libonnxruntime.so")
	assert.Error(t, err)
}

func TestDownloadONNXRuntime(t *testing.T) {
	archive := onnxArchive(t, "onnxruntime-linux-x64-1.23.0/lib/", true)
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write(archive)
	}))
	defer ts.Close()

	old := onnxReleaseBaseURL
	onnxReleaseBaseURL = ts.URL
	t.Cleanup(func() { onnxReleaseBaseURL = old })

	dir := t.TempDir()
	require.NoError(t, downloadONNXRuntime(context.Background(), "1.23.0", "linux", "amd64", dir))
	assert.Equal(t, "/v1.23.0/onnxruntime-linux-x64-1.23.0.tgz", gotPath)
	assert.FileExists(t, filepath.Join(dir, "libonnxruntime.so"))
}

func TestDownloadONNXRuntime_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	old := onnxReleaseBaseURL
	onnxReleaseBaseURL = ts.URL
	t.Cleanup(func() { onnxReleaseBaseURL = old })

	err := downloadONNXRuntime(context.Background(), "1.23.0", "linux", "amd64", t.TempDir())
	assert.ErrorContains(t, err, "status 404")
}

func TestEnsureONNXRuntime_UsesONNXPath(t *testing.T) {
	t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")

	var set string
	old := setONNXPathEnv
	setONNXPathEnv = func(p string) error { set = p; return nil }
	t.Cleanup(func() { setONNXPathEnv = old })

	got, err := EnsureONNXRuntime(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/onnx/libonnxruntime.so", got)
	assert.Equal(t, got, set)
}

func TestGetONNXLibraryPath_ManagedInstall(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ONNX_PATH", "")

	assert.Empty(t, GetONNXLibraryPath())

	dir := filepath.Join(home, ".config", "rowindex", "lib")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	lib := filepath.Join(dir, libraryName(runtime.GOOS))
	require.NoError(t, os.WriteFile(lib, []byte("ELF"), 0o644))

	assert.Equal(t, lib, GetONNXLibraryPath())
}
