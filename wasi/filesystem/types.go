package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/clocks"
)

type TypesHost struct {
	resources *wasi.ResourceTable
}

func NewTypesHost(resources *wasi.ResourceTable) *TypesHost {
	return &TypesHost{resources: resources}
}

func (h *TypesHost) Namespace() string {
	return "wasi:filesystem/types@0.2.8"
}

type DescriptorType uint8

const (
	DescriptorTypeUnknown DescriptorType = iota
	DescriptorTypeBlockDevice
	DescriptorTypeCharacterDevice
	DescriptorTypeDirectory
	DescriptorTypeFifo
	DescriptorTypeSymbolicLink
	DescriptorTypeRegularFile
	DescriptorTypeSocket
)

var descriptorTypeNames = [...]string{
	DescriptorTypeUnknown:         "unknown",
	DescriptorTypeBlockDevice:     "block-device",
	DescriptorTypeCharacterDevice: "character-device",
	DescriptorTypeDirectory:       "directory",
	DescriptorTypeFifo:            "fifo",
	DescriptorTypeSymbolicLink:    "symbolic-link",
	DescriptorTypeRegularFile:     "regular-file",
	DescriptorTypeSocket:          "socket",
}

func (t DescriptorType) String() string {
	if int(t) < len(descriptorTypeNames) {
		return descriptorTypeNames[t]
	}
	return "unknown"
}

// PathFlags mirror wasi:filesystem path-flags.
type PathFlags uint8

const PathSymlinkFollow PathFlags = 1

// OpenFlags mirror wasi:filesystem open-flags.
type OpenFlags uint8

const (
	OpenCreate OpenFlags = 1 << iota
	OpenDirectory
	OpenExclusive
	OpenTruncate
)

type DescriptorStat struct {
	DataAccessTimestamp       *clocks.Datetime
	DataModificationTimestamp *clocks.Datetime
	Size                      uint64
	LinkCount                 uint64
	Type                      DescriptorType
}

func (h *TypesHost) getDescriptor(handle uint32) (*wasi.DescriptorResource, *Error) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, &Error{Code: ErrorBadDescriptor}
	}
	desc, ok := r.(*wasi.DescriptorResource)
	if !ok {
		return nil, &Error{Code: ErrorBadDescriptor}
	}
	return desc, nil
}

// getFile returns the open file behind a regular-file descriptor.
func (h *TypesHost) getFile(handle uint32) (*wasi.DescriptorResource, *os.File, *Error) {
	desc, err := h.getDescriptor(handle)
	if err != nil {
		return nil, nil, err
	}
	if desc.IsDir() {
		return nil, nil, &Error{Code: ErrorIsDirectory}
	}
	f := desc.File()
	if f == nil {
		return nil, nil, &Error{Code: ErrorBadDescriptor}
	}
	return desc, f, nil
}

// resolvePath resolves a path relative to a directory descriptor. Returns error if path escapes the sandbox.
func (h *TypesHost) resolvePath(desc *wasi.DescriptorResource, path string) (string, *Error) {
	if !desc.IsDir() {
		return "", &Error{Code: ErrorNotDirectory}
	}
	if filepath.IsAbs(path) {
		return "", &Error{Code: ErrorNotPermitted}
	}
	fullPath := filepath.Clean(filepath.Join(desc.Path(), path))

	// Ensure path doesn't escape the descriptor's directory
	rel, err := filepath.Rel(desc.Path(), fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &Error{Code: ErrorNotPermitted}
	}
	return fullPath, nil
}

func fileInfoToDescriptorType(info os.FileInfo) DescriptorType {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return DescriptorTypeDirectory
	case mode.IsRegular():
		return DescriptorTypeRegularFile
	case mode&os.ModeSymlink != 0:
		return DescriptorTypeSymbolicLink
	case mode&os.ModeNamedPipe != 0:
		return DescriptorTypeFifo
	case mode&os.ModeSocket != 0:
		return DescriptorTypeSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return DescriptorTypeCharacterDevice
		}
		return DescriptorTypeBlockDevice
	default:
		return DescriptorTypeUnknown
	}
}

func statOf(info os.FileInfo) *DescriptorStat {
	mtime := clocks.DatetimeOf(info.ModTime())
	return &DescriptorStat{
		Type:                      fileInfoToDescriptorType(info),
		LinkCount:                 1,
		Size:                      uint64(info.Size()),
		DataModificationTimestamp: &mtime,
		DataAccessTimestamp:       accessTime(info),
	}
}

func (h *TypesHost) FilesystemErrorCode(_ context.Context, err *Error) ErrorCode {
	if err == nil {
		return ErrorIo
	}
	return err.Code
}

// MethodDescriptorOpenAt opens path relative to a directory descriptor. The
// new descriptor is independent of the directory it was opened from.
func (h *TypesHost) MethodDescriptorOpenAt(_ context.Context, self uint32, pathFlags PathFlags, path string, openFlags OpenFlags, flags wasi.DescriptorFlags) (uint32, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return 0, err
	}
	fullPath, err := h.resolvePath(desc, path)
	if err != nil {
		return 0, err
	}

	mutating := flags&(wasi.DescriptorWrite|wasi.DescriptorMutateDirectory) != 0 || openFlags&(OpenCreate|OpenTruncate) != 0
	if mutating && desc.Flags()&wasi.DescriptorMutateDirectory == 0 {
		return 0, &Error{Code: ErrorReadOnly}
	}

	stat := os.Lstat
	if pathFlags&PathSymlinkFollow != 0 {
		stat = os.Stat
	}
	info, osErr := stat(fullPath)
	switch {
	case osErr == nil && info.IsDir():
		if openFlags&(OpenCreate|OpenExclusive) == OpenCreate|OpenExclusive {
			return 0, &Error{Code: ErrorExist}
		}
		if openFlags&OpenTruncate != 0 || flags&wasi.DescriptorWrite != 0 {
			return 0, &Error{Code: ErrorIsDirectory}
		}
		return h.resources.Add(wasi.NewDirectoryDescriptor(fullPath, flags)), nil
	case osErr == nil && openFlags&OpenDirectory != 0:
		return 0, &Error{Code: ErrorNotDirectory}
	case osErr != nil && !os.IsNotExist(osErr):
		return 0, mapOSError(osErr)
	case osErr != nil && openFlags&OpenCreate == 0:
		return 0, &Error{Code: ErrorNoEntry}
	case osErr != nil && openFlags&OpenDirectory != 0:
		return 0, &Error{Code: ErrorNoEntry}
	}

	mode := os.O_RDONLY
	switch {
	case flags&wasi.DescriptorRead != 0 && flags&wasi.DescriptorWrite != 0:
		mode = os.O_RDWR
	case flags&wasi.DescriptorWrite != 0:
		mode = os.O_WRONLY
	}
	if openFlags&OpenCreate != 0 {
		mode |= os.O_CREATE
		if mode&(os.O_WRONLY|os.O_RDWR) == 0 {
			mode |= os.O_RDWR
		}
	}
	if openFlags&OpenExclusive != 0 {
		mode |= os.O_EXCL
	}
	if openFlags&OpenTruncate != 0 {
		if mode&(os.O_WRONLY|os.O_RDWR) == 0 {
			mode |= os.O_RDWR
		}
		mode |= os.O_TRUNC
	}

	f, osErr := os.OpenFile(fullPath, mode, 0o644)
	if osErr != nil {
		return 0, mapOSError(osErr)
	}
	return h.resources.Add(wasi.NewFileDescriptor(fullPath, f, flags)), nil
}

func (h *TypesHost) MethodDescriptorGetType(_ context.Context, self uint32) (DescriptorType, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return DescriptorTypeUnknown, err
	}
	info, osErr := os.Lstat(desc.Path())
	if osErr != nil {
		return DescriptorTypeUnknown, mapOSError(osErr)
	}
	return fileInfoToDescriptorType(info), nil
}

func (h *TypesHost) MethodDescriptorGetFlags(_ context.Context, self uint32) (wasi.DescriptorFlags, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return 0, err
	}
	return desc.Flags(), nil
}

func (h *TypesHost) MethodDescriptorStat(_ context.Context, self uint32) (*DescriptorStat, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return nil, err
	}
	var info os.FileInfo
	var osErr error
	if f := desc.File(); f != nil {
		info, osErr = f.Stat()
	} else {
		info, osErr = os.Stat(desc.Path())
	}
	if osErr != nil {
		return nil, mapOSError(osErr)
	}
	return statOf(info), nil
}

func (h *TypesHost) MethodDescriptorStatAt(_ context.Context, self uint32, pathFlags PathFlags, path string) (*DescriptorStat, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return nil, err
	}
	fullPath, err := h.resolvePath(desc, path)
	if err != nil {
		return nil, err
	}

	var info os.FileInfo
	var osErr error
	if pathFlags&PathSymlinkFollow != 0 {
		info, osErr = os.Stat(fullPath)
	} else {
		info, osErr = os.Lstat(fullPath)
	}
	if osErr != nil {
		return nil, mapOSError(osErr)
	}
	return statOf(info), nil
}

func (h *TypesHost) MethodDescriptorSetSize(_ context.Context, self uint32, size uint64) *Error {
	desc, f, err := h.getFile(self)
	if err != nil {
		return err
	}
	if desc.ReadOnly() {
		return &Error{Code: ErrorBadDescriptor}
	}
	if size > 1<<62 {
		return &Error{Code: ErrorFileTooLarge}
	}
	return mapOSError(f.Truncate(int64(size)))
}

func (h *TypesHost) MethodDescriptorSync(ctx context.Context, self uint32) *Error {
	return h.MethodDescriptorSyncData(ctx, self)
}

// MethodDescriptorSyncData flushes file contents to storage. Directories have nothing to flush.
func (h *TypesHost) MethodDescriptorSyncData(_ context.Context, self uint32) *Error {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return err
	}
	f := desc.File()
	if f == nil {
		return nil
	}
	return mapOSError(f.Sync())
}

func (h *TypesHost) MethodDescriptorRead(_ context.Context, self uint32, length uint64, offset uint64) ([]byte, bool, *Error) {
	_, f, err := h.getFile(self)
	if err != nil {
		return nil, false, err
	}
	if length > wasi.MaxAllocationSize {
		length = wasi.MaxAllocationSize
	}
	buf := make([]byte, length)
	n, osErr := f.ReadAt(buf, int64(offset))
	if n > 0 || length == 0 {
		return buf[:n], false, nil
	}
	if osErr != nil && !errors.Is(osErr, io.EOF) {
		return nil, false, mapOSError(osErr)
	}
	return nil, true, nil
}

func (h *TypesHost) MethodDescriptorWrite(_ context.Context, self uint32, buffer []byte, offset uint64) (uint64, *Error) {
	desc, f, err := h.getFile(self)
	if err != nil {
		return 0, err
	}
	if desc.ReadOnly() {
		return 0, &Error{Code: ErrorBadDescriptor}
	}
	n, osErr := f.WriteAt(buffer, int64(offset))
	if osErr != nil {
		return uint64(n), mapOSError(osErr)
	}
	return uint64(n), nil
}

// MethodDescriptorReadViaStream returns an input stream owned by the
// descriptor, reading from offset.
func (h *TypesHost) MethodDescriptorReadViaStream(_ context.Context, self uint32, offset uint64) (uint32, *Error) {
	desc, f, err := h.getFile(self)
	if err != nil {
		return 0, err
	}
	if desc.Flags()&wasi.DescriptorRead == 0 {
		return 0, &Error{Code: ErrorBadDescriptor}
	}
	return h.addChild(self, wasi.NewFileInputStream(f, int64(offset)))
}

// MethodDescriptorWriteViaStream returns an output stream owned by the
// descriptor, writing from offset.
func (h *TypesHost) MethodDescriptorWriteViaStream(_ context.Context, self uint32, offset uint64) (uint32, *Error) {
	desc, f, err := h.getFile(self)
	if err != nil {
		return 0, err
	}
	if desc.ReadOnly() {
		return 0, &Error{Code: ErrorBadDescriptor}
	}
	return h.addChild(self, wasi.NewFileOutputStream(f, int64(offset), false))
}

func (h *TypesHost) MethodDescriptorAppendViaStream(_ context.Context, self uint32) (uint32, *Error) {
	desc, f, err := h.getFile(self)
	if err != nil {
		return 0, err
	}
	if desc.ReadOnly() {
		return 0, &Error{Code: ErrorBadDescriptor}
	}
	return h.addChild(self, wasi.NewFileOutputStream(f, 0, true))
}

func (h *TypesHost) addChild(self uint32, r wasi.Resource) (uint32, *Error) {
	handle, err := h.resources.AddChild(self, r)
	if err != nil {
		return 0, &Error{Code: ErrorBadDescriptor}
	}
	return handle, nil
}

// MethodDescriptorReadDirectory snapshots the directory into an entry stream
// owned by the descriptor.
func (h *TypesHost) MethodDescriptorReadDirectory(_ context.Context, self uint32) (uint32, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return 0, err
	}
	if !desc.IsDir() {
		return 0, &Error{Code: ErrorNotDirectory}
	}

	entries, osErr := os.ReadDir(desc.Path())
	if osErr != nil {
		return 0, mapOSError(osErr)
	}

	dirEntries := make([]wasi.DirectoryEntry, 0, len(entries))
	for _, entry := range entries {
		// entry.Info() may fail if the entry vanished; fall back to IsDir.
		info, _ := entry.Info()
		var dtype uint8
		if info != nil {
			dtype = uint8(fileInfoToDescriptorType(info))
		} else if entry.IsDir() {
			dtype = uint8(DescriptorTypeDirectory)
		} else {
			dtype = uint8(DescriptorTypeRegularFile)
		}
		dirEntries = append(dirEntries, wasi.DirectoryEntry{
			Type: dtype,
			Name: entry.Name(),
		})
	}

	return h.addChild(self, wasi.NewDirectoryEntryStreamResource(dirEntries))
}

func (h *TypesHost) MethodDirectoryEntryStreamReadDirectoryEntry(_ context.Context, self uint32) (*wasi.DirectoryEntry, *Error) {
	r, ok := h.resources.Get(self)
	if !ok {
		return nil, &Error{Code: ErrorBadDescriptor}
	}
	stream, ok := r.(*wasi.DirectoryEntryStreamResource)
	if !ok {
		return nil, &Error{Code: ErrorBadDescriptor}
	}
	return stream.ReadNext(), nil
}

func (h *TypesHost) MethodDescriptorCreateDirectoryAt(_ context.Context, self uint32, path string) *Error {
	desc, err := h.mutableDir(self)
	if err != nil {
		return err
	}
	fullPath, err := h.resolvePath(desc, path)
	if err != nil {
		return err
	}
	return mapOSError(os.Mkdir(fullPath, 0o755))
}

func (h *TypesHost) MethodDescriptorUnlinkFileAt(_ context.Context, self uint32, path string) *Error {
	desc, err := h.mutableDir(self)
	if err != nil {
		return err
	}
	fullPath, err := h.resolvePath(desc, path)
	if err != nil {
		return err
	}
	info, osErr := os.Lstat(fullPath)
	if osErr != nil {
		return mapOSError(osErr)
	}
	if info.IsDir() {
		return &Error{Code: ErrorIsDirectory}
	}
	return mapOSError(os.Remove(fullPath))
}

func (h *TypesHost) MethodDescriptorRemoveDirectoryAt(_ context.Context, self uint32, path string) *Error {
	desc, err := h.mutableDir(self)
	if err != nil {
		return err
	}
	fullPath, err := h.resolvePath(desc, path)
	if err != nil {
		return err
	}
	info, osErr := os.Lstat(fullPath)
	if osErr != nil {
		return mapOSError(osErr)
	}
	if !info.IsDir() {
		return &Error{Code: ErrorNotDirectory}
	}
	return mapOSError(os.Remove(fullPath))
}

func (h *TypesHost) MethodDescriptorRenameAt(_ context.Context, self uint32, oldPath string, newDescriptor uint32, newPath string) *Error {
	oldDesc, err := h.mutableDir(self)
	if err != nil {
		return err
	}
	newDesc, err := h.mutableDir(newDescriptor)
	if err != nil {
		return err
	}
	oldFullPath, err := h.resolvePath(oldDesc, oldPath)
	if err != nil {
		return err
	}
	newFullPath, err := h.resolvePath(newDesc, newPath)
	if err != nil {
		return err
	}
	return mapOSError(os.Rename(oldFullPath, newFullPath))
}

func (h *TypesHost) mutableDir(handle uint32) (*wasi.DescriptorResource, *Error) {
	desc, err := h.getDescriptor(handle)
	if err != nil {
		return nil, err
	}
	if desc.Flags()&wasi.DescriptorMutateDirectory == 0 {
		return nil, &Error{Code: ErrorReadOnly}
	}
	return desc, nil
}

func (h *TypesHost) MethodDescriptorIsSameObject(_ context.Context, self uint32, other uint32) bool {
	a, err := h.getDescriptor(self)
	if err != nil {
		return false
	}
	b, err := h.getDescriptor(other)
	if err != nil {
		return false
	}
	ia, errA := os.Stat(a.Path())
	ib, errB := os.Stat(b.Path())
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}

func (h *TypesHost) MethodDescriptorMetadataHash(_ context.Context, self uint32) (uint64, *Error) {
	desc, err := h.getDescriptor(self)
	if err != nil {
		return 0, err
	}
	info, osErr := os.Stat(desc.Path())
	if osErr != nil {
		return 0, mapOSError(osErr)
	}
	// Simple hash based on size and modification time
	return uint64(info.Size()) ^ uint64(info.ModTime().UnixNano()), nil
}

// ResourceDropDescriptor is refused while streams opened on it are live.
func (h *TypesHost) ResourceDropDescriptor(_ context.Context, self uint32) *Error {
	if err := h.resources.Remove(self); err != nil {
		if _, ok := h.resources.Get(self); ok {
			return &Error{Code: ErrorBusy}
		}
		return &Error{Code: ErrorBadDescriptor}
	}
	return nil
}

func (h *TypesHost) ResourceDropDirectoryEntryStream(_ context.Context, self uint32) {
	_ = h.resources.Remove(self)
}

func (h *TypesHost) Register() map[string]any {
	return map[string]any{
		"filesystem-error-code":                               h.FilesystemErrorCode,
		"[method]descriptor.open-at":                          h.MethodDescriptorOpenAt,
		"[method]descriptor.get-type":                         h.MethodDescriptorGetType,
		"[method]descriptor.get-flags":                        h.MethodDescriptorGetFlags,
		"[method]descriptor.stat":                             h.MethodDescriptorStat,
		"[method]descriptor.stat-at":                          h.MethodDescriptorStatAt,
		"[method]descriptor.set-size":                         h.MethodDescriptorSetSize,
		"[method]descriptor.sync":                             h.MethodDescriptorSync,
		"[method]descriptor.sync-data":                        h.MethodDescriptorSyncData,
		"[method]descriptor.read":                             h.MethodDescriptorRead,
		"[method]descriptor.write":                            h.MethodDescriptorWrite,
		"[method]descriptor.read-via-stream":                  h.MethodDescriptorReadViaStream,
		"[method]descriptor.write-via-stream":                 h.MethodDescriptorWriteViaStream,
		"[method]descriptor.append-via-stream":                h.MethodDescriptorAppendViaStream,
		"[method]descriptor.read-directory":                   h.MethodDescriptorReadDirectory,
		"[method]descriptor.create-directory-at":              h.MethodDescriptorCreateDirectoryAt,
		"[method]descriptor.unlink-file-at":                   h.MethodDescriptorUnlinkFileAt,
		"[method]descriptor.remove-directory-at":              h.MethodDescriptorRemoveDirectoryAt,
		"[method]descriptor.rename-at":                        h.MethodDescriptorRenameAt,
		"[method]descriptor.is-same-object":                   h.MethodDescriptorIsSameObject,
		"[method]descriptor.metadata-hash":                    h.MethodDescriptorMetadataHash,
		"[method]directory-entry-stream.read-directory-entry": h.MethodDirectoryEntryStreamReadDirectoryEntry,
		"[resource-drop]descriptor":                           h.ResourceDropDescriptor,
		"[resource-drop]directory-entry-stream":               h.ResourceDropDirectoryEntryStream,
	}
}
