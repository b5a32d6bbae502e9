//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion matches the onnxruntime_go version pulled in by
// fastembed-go.
const DefaultONNXRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates the current OS/arch has no ONNX release.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// onnxReleaseBaseURL is a variable so tests can serve archives locally.
var onnxReleaseBaseURL = "https://github.com/microsoft/onnxruntime/releases/download"

var platformArchives = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

var libraryNames = map[string]string{
	"linux":  "libonnxruntime.so",
	"darwin": "libonnxruntime.dylib",
}

func platformArchive(goos, goarch string) (string, error) {
	name, ok := platformArchives[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return name, nil
}

func libraryName(goos string) string {
	if name, ok := libraryNames[goos]; ok {
		return name
	}
	return libraryNames["linux"]
}

// onnxInstallDir is the managed install location, ~/.config/rowindex/lib.
func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "rowindex", "lib")
}

// GetONNXLibraryPath returns ONNX_PATH when set, else the managed install
// when present, else "".
func GetONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), libraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// setONNXPathEnv points fastembed-go at the library through ONNX_PATH.
var setONNXPathEnv = func(path string) error {
	return os.Setenv("ONNX_PATH", path)
}

// EnsureONNXRuntime makes the ONNX runtime library available to FastEmbed,
// downloading it into the managed directory on first use, and returns its
// path.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	libPath := GetONNXLibraryPath()
	if libPath == "" {
		dir := onnxInstallDir()
		logger.Info("ONNX runtime not found, downloading",
			zap.String("version", DefaultONNXRuntimeVersion),
			zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
			zap.String("dir", dir),
		)
		if err := downloadONNXRuntime(ctx, DefaultONNXRuntimeVersion, runtime.GOOS, runtime.GOARCH, dir); err != nil {
			return "", fmt.Errorf("failed to download ONNX runtime (set ONNX_PATH to use an existing install): %w", err)
		}
		if libPath = GetONNXLibraryPath(); libPath == "" {
			return "", fmt.Errorf("ONNX runtime download completed but library not found in %s", dir)
		}
		logger.Info("ONNX runtime installed", zap.String("path", libPath))
	}

	if err := setONNXPathEnv(libPath); err != nil {
		return "", fmt.Errorf("setting ONNX_PATH: %w", err)
	}
	return libPath, nil
}

// downloadONNXRuntime fetches the release tarball for goos/goarch and
// extracts its lib/ directory into destDir.
func downloadONNXRuntime(ctx context.Context, version, goos, goarch, destDir string) error {
	platform, err := platformArchive(goos, goarch)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	url := fmt.Sprintf("%s/v%s/onnxruntime-%s-%s.tgz", onnxReleaseBaseURL, version, platform, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version)
	if err := extractLibraries(resp.Body, destDir, prefix, libraryName(goos)); err != nil {
		return fmt.Errorf("extracting archive: %w", err)
	}
	return nil
}

// extractLibraries copies regular files and symlinks under prefix into
// destDir, flattened. It fails if libName (or a versioned variant) is absent.
func extractLibraries(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}

		base := path.Base(name)
		dest := filepath.Join(destDir, base)
		isLib := base == libName || strings.HasPrefix(base, libName+".")

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			// Links inside lib/ are relative siblings; anything else is skipped.
			if strings.Contains(hdr.Linkname, "/") {
				continue
			}
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return fmt.Errorf("writing %s: %w", base, err)
			}
		default:
			continue
		}
		found = found || isLib
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
