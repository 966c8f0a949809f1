// Package archive implements the fs.archive resource type: a tar or tar.gz
// archive built from a source directory. Construction is deterministic, so
// two builds of the same tree are byte-identical and the archive digest
// doubles as the convergence verdict. The type deliberately has no export
// capability.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openconverge/converge/pkg/engine"
)

// TypeName is the resource type implemented by this package.
const TypeName = "fs.archive"

// Version is the resource type version.
const Version = "1.0.0"

// Archive formats accepted by the format property.
const (
	FormatTar   = "tar"
	FormatTarGz = "tar.gz"
)

var schema = engine.MustSchema(TypeName, Version,
	engine.PropertySpec{
		Name:        "path",
		Kind:        engine.KindString,
		Description: "Path of the archive file.",
		Required:    true,
		Identifying: true,
	},
	engine.PropertySpec{
		Name:        "sourceDir",
		Kind:        engine.KindString,
		Description: "Directory the archive is built from.",
		Required:    true,
	},
	engine.PropertySpec{
		Name:        "format",
		Kind:        engine.KindString,
		Description: "Archive format.",
		Enum:        []string{FormatTar, FormatTarGz},
		Default:     FormatTarGz,
	},
	engine.PropertySpec{
		Name:        "checksum",
		Kind:        engine.KindString,
		Description: "SHA-256 digest of the archive file, hex encoded.",
		ReadOnly:    true,
	},
)

// Resource manages fs.archive units on the local file system.
type Resource struct{}

// New creates an fs.archive resource.
func New() *Resource {
	return &Resource{}
}

// TypeInfo reports the resource type metadata.
func (r *Resource) TypeInfo() engine.TypeInfo {
	return engine.TypeInfo{
		Name:        TypeName,
		Version:     Version,
		Description: "Reproducible tar or tar.gz archive of a source directory.",
	}
}

// Schema reports the property contract.
func (r *Resource) Schema() *engine.Schema {
	return schema
}

// Get reads the archive at the addressed path. The format is recognized from
// the file content, not the file name.
func (r *Resource) Get(ctx context.Context, req *engine.GetRequest) (*engine.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, _ := req.Desired.StringProp("path")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to read archive %s", path))
	}

	return engine.NewInstance().
		SetProp("path", path).
		SetProp("format", sniffFormat(data)).
		SetProp("checksum", digest(data)), nil
}

// Test reports the convergence verdict. Existence mismatches follow the
// schema diff; when both sides exist, the archive is in desired state iff its
// digest matches a fresh deterministic build of the source directory.
func (r *Resource) Test(ctx context.Context, req *engine.TestRequest) (*engine.TestResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !req.Desired.Exists() || !req.Actual.Exists() {
		diff, err := engine.Diff(r.Schema(), req.Desired, req.Actual)
		if err != nil {
			return nil, err
		}
		return &engine.TestResponse{Diff: diff}, nil
	}

	sourceDir, _ := req.Desired.StringProp("sourceDir")
	format := formatOf(req.Desired)
	want, err := build(sourceDir, format)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	if actualFormat, _ := req.Actual.StringProp("format"); actualFormat != format {
		changed = append(changed, "format")
	}
	if actualSum, _ := req.Actual.StringProp("checksum"); actualSum != digest(want) {
		changed = append(changed, "checksum")
	}
	sort.Strings(changed)

	return &engine.TestResponse{
		Diff: &engine.DiffResult{InDesiredState: len(changed) == 0, Changed: changed},
	}, nil
}

// Set builds the archive from the source directory and writes it to the
// addressed path.
func (r *Resource) Set(ctx context.Context, req *engine.SetRequest) (*engine.SetResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, _ := req.Desired.StringProp("path")
	sourceDir, _ := req.Desired.StringProp("sourceDir")
	format := formatOf(req.Desired)

	data, err := build(sourceDir, format)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}

	after := engine.NewInstance().
		SetProp("path", path).
		SetProp("format", format).
		SetProp("checksum", digest(data))
	return &engine.SetResponse{After: after}, nil
}

// Delete removes the archive file. A missing file reports engine.ErrNotFound,
// which the caller treats as success.
func (r *Resource) Delete(ctx context.Context, req *engine.DeleteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, _ := req.Desired.StringProp("path")
	if err := os.Remove(path); err != nil {
		return classify(err, fmt.Sprintf("failed to delete archive %s", path))
	}
	return nil
}

// formatOf resolves the effective archive format of a desired state.
func formatOf(desired *engine.Instance) string {
	if format, ok := desired.StringProp("format"); ok {
		return format
	}
	return FormatTarGz
}

// build produces the archive bytes for a source directory. Entries are
// written in flat-sorted path order with zeroed timestamps and ownership, so
// the output depends only on the tree's names, modes, link targets, and file
// contents.
func build(sourceDir, format string) ([]byte, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewInvalidArgumentError(fmt.Sprintf("source directory %s does not exist", sourceDir), err)
		}
		return nil, classify(err, fmt.Sprintf("failed to read source directory %s", sourceDir))
	}
	if !info.IsDir() {
		return nil, engine.NewInvalidArgumentError(fmt.Sprintf("source %s is not a directory", sourceDir), nil)
	}

	var entries []string
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == sourceDir {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to walk source directory %s", sourceDir))
	}
	sort.Strings(entries)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, rel := range entries {
		if err := writeEntry(tw, sourceDir, rel); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, engine.NewGenericError("failed to finalize archive", err)
	}

	if format == FormatTar {
		return buf.Bytes(), nil
	}

	var zbuf bytes.Buffer
	// The zero-value gzip header carries no name and no mod time, which
	// keeps the compressed output reproducible.
	zw := gzip.NewWriter(&zbuf)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return nil, engine.NewGenericError("failed to compress archive", err)
	}
	if err := zw.Close(); err != nil {
		return nil, engine.NewGenericError("failed to compress archive", err)
	}
	return zbuf.Bytes(), nil
}

// writeEntry appends one tree entry to the archive.
func writeEntry(tw *tar.Writer, sourceDir, rel string) error {
	full := filepath.Join(sourceDir, rel)
	info, err := os.Lstat(full)
	if err != nil {
		return classify(err, fmt.Sprintf("failed to stat %s", full))
	}

	link := ""
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		link, err = os.Readlink(full)
		if err != nil {
			return classify(err, fmt.Sprintf("failed to read link %s", full))
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		return engine.NewInvalidArgumentError(fmt.Sprintf("unsupported file type at %s", full), nil)
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return engine.NewGenericError(fmt.Sprintf("failed to build header for %s", full), err)
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}
	// Zero everything that varies between builds of the same tree.
	hdr.ModTime = time.Unix(0, 0).UTC()
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	hdr.Uid = 0
	hdr.Gid = 0
	hdr.Uname = ""
	hdr.Gname = ""

	if err := tw.WriteHeader(hdr); err != nil {
		return engine.NewGenericError(fmt.Sprintf("failed to write header for %s", full), err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return classify(err, fmt.Sprintf("failed to read %s", full))
	}
	if _, err := tw.Write(data); err != nil {
		return engine.NewGenericError(fmt.Sprintf("failed to write %s", full), err)
	}
	return nil
}

// writeAtomic writes the archive through a sibling temp file and rename so a
// failed build never leaves a truncated archive behind.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return classify(err, fmt.Sprintf("failed to create directory for %s", path))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return classify(err, fmt.Sprintf("failed to write archive %s", path))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return classify(err, fmt.Sprintf("failed to write archive %s", path))
	}
	return nil
}

// sniffFormat recognizes the archive format from the gzip magic number.
func sniffFormat(data []byte) string {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return FormatTarGz
	}
	return FormatTar
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// classify maps file system failures onto the failure taxonomy.
func classify(err error, msg string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return engine.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return engine.NewPermissionDeniedError(msg, err)
	default:
		return engine.NewGenericError(msg, err)
	}
}
