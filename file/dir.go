package file

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/filesystem"
	"github.com/wippyai/wasync/wasi/host"
)

// ReadToString reads a whole file as UTF-8 text.
func ReadToString(ctx context.Context, h *host.WASIHost, path string) (string, error) {
	f, err := Open(ctx, h, path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(ctx, buf)
		b.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	s := b.String()
	if !utf8.ValidString(s) {
		return "", errors.InvalidUTF8(errors.PhaseFilesystem, path, []byte(s))
	}
	return s, nil
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Path string
	Name string
	Type filesystem.DescriptorType
}

func (e DirEntry) IsDir() bool { return e.Type == filesystem.DescriptorTypeDirectory }

// ReadDir lists the directory at path.
func ReadDir(ctx context.Context, h *host.WASIHost, path string) ([]DirEntry, error) {
	m, err := resolve(ctx, h, "read-dir", path)
	if err != nil {
		return nil, err
	}
	defer m.release()

	dir, ferr := h.Types.MethodDescriptorOpenAt(ctx, m.handle, filesystem.PathSymlinkFollow, m.rel, filesystem.OpenDirectory, wasi.DescriptorRead)
	if ferr != nil {
		return nil, hostError("read-dir", path, ferr)
	}
	defer h.Types.ResourceDropDescriptor(ctx, dir)

	entries, ferr := h.Types.MethodDescriptorReadDirectory(ctx, dir)
	if ferr != nil {
		return nil, hostError("read-dir", path, ferr)
	}
	// the entry stream is a child of dir and must go first
	defer h.Types.ResourceDropDirectoryEntryStream(ctx, entries)

	base := strings.TrimSuffix(path, "/")
	var out []DirEntry
	for {
		e, ferr := h.Types.MethodDirectoryEntryStreamReadDirectoryEntry(ctx, entries)
		if ferr != nil {
			return nil, hostError("read-dir", path, ferr)
		}
		if e == nil {
			return out, nil
		}
		out = append(out, DirEntry{
			Path: base + "/" + e.Name,
			Name: e.Name,
			Type: filesystem.DescriptorType(e.Type),
		})
	}
}

// CreateDir creates a single directory.
func CreateDir(ctx context.Context, h *host.WASIHost, path string) error {
	return atParent(ctx, h, "create-dir", path, h.Types.MethodDescriptorCreateDirectoryAt)
}

// RemoveFile unlinks a file.
func RemoveFile(ctx context.Context, h *host.WASIHost, path string) error {
	return atParent(ctx, h, "remove-file", path, h.Types.MethodDescriptorUnlinkFileAt)
}

// RemoveDir removes an empty directory.
func RemoveDir(ctx context.Context, h *host.WASIHost, path string) error {
	return atParent(ctx, h, "remove-dir", path, h.Types.MethodDescriptorRemoveDirectoryAt)
}

func atParent(ctx context.Context, h *host.WASIHost, op, path string, fn func(context.Context, uint32, string) *filesystem.Error) error {
	m, err := resolve(ctx, h, op, path)
	if err != nil {
		return err
	}
	defer m.release()
	if ferr := fn(ctx, m.handle, m.rel); ferr != nil {
		return hostError(op, path, ferr)
	}
	return nil
}

// Rename moves a file or directory. Both paths may lie under different
// preopens.
func Rename(ctx context.Context, h *host.WASIHost, from, to string) error {
	src, err := resolve(ctx, h, "rename", from)
	if err != nil {
		return err
	}
	defer src.release()
	dst, err := resolve(ctx, h, "rename", to)
	if err != nil {
		return err
	}
	defer dst.release()

	if ferr := h.Types.MethodDescriptorRenameAt(ctx, src.handle, src.rel, dst.handle, dst.rel); ferr != nil {
		return hostError("rename", from, ferr)
	}
	return nil
}
