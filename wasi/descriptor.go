package wasi

import (
	"errors"
	"io"
	"os"
	"sync"
)

// DescriptorFlags mirror wasi:filesystem descriptor-flags.
type DescriptorFlags uint8

const (
	DescriptorRead DescriptorFlags = 1 << iota
	DescriptorWrite
	DescriptorMutateDirectory
)

// DescriptorResource represents an open file or directory handle.
// Regular files keep an *os.File for positional I/O; directories are path based.
type DescriptorResource struct {
	file  *os.File
	path  string
	mu    sync.Mutex
	flags DescriptorFlags
	isDir bool
}

// NewDirectoryDescriptor creates a descriptor for a host directory.
func NewDirectoryDescriptor(path string, flags DescriptorFlags) *DescriptorResource {
	return &DescriptorResource{path: path, isDir: true, flags: flags}
}

// NewFileDescriptor wraps an opened host file.
func NewFileDescriptor(path string, f *os.File, flags DescriptorFlags) *DescriptorResource {
	return &DescriptorResource{path: path, file: f, flags: flags}
}

func (d *DescriptorResource) Type() ResourceType { return ResourceDescriptor }

func (d *DescriptorResource) Drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
}

func (d *DescriptorResource) Path() string           { return d.path }
func (d *DescriptorResource) IsDir() bool            { return d.isDir }
func (d *DescriptorResource) Flags() DescriptorFlags { return d.flags }
func (d *DescriptorResource) ReadOnly() bool         { return d.flags&DescriptorWrite == 0 }

// File returns the open host file, nil for directories or after Drop.
func (d *DescriptorResource) File() *os.File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file
}

// FileInputStream reads a file from an offset. Files are always ready.
type FileInputStream struct {
	AlwaysReady
	file   *os.File
	mu     sync.Mutex
	offset int64
}

func NewFileInputStream(f *os.File, offset int64) *FileInputStream {
	return &FileInputStream{file: f, offset: offset}
}

func (s *FileInputStream) Type() ResourceType { return ResourceInputStream }
func (s *FileInputStream) Drop()              {}

func (s *FileInputStream) Read(length uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if length > MaxAllocationSize {
		length = MaxAllocationSize
	}
	if length == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, length)
	n, err := s.file.ReadAt(buf, s.offset)
	s.offset += int64(n)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, closedErr()
	}
	return nil, failedErr(err)
}

// FileOutputStream writes a file from an offset, or at its end when appending.
type FileOutputStream struct {
	AlwaysReady
	file   *os.File
	mu     sync.Mutex
	offset int64
	append bool
}

func NewFileOutputStream(f *os.File, offset int64, append bool) *FileOutputStream {
	return &FileOutputStream{file: f, offset: offset, append: append}
}

func (s *FileOutputStream) Type() ResourceType { return ResourceOutputStream }
func (s *FileOutputStream) Drop()              {}

func (s *FileOutputStream) CheckWrite() (uint64, error) {
	return DefaultBufferSize, nil
}

func (s *FileOutputStream) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) > DefaultBufferSize {
		return failedErr(ErrWriteNotPermitted)
	}
	if s.append {
		info, err := s.file.Stat()
		if err != nil {
			return failedErr(err)
		}
		s.offset = info.Size()
	}
	n, err := s.file.WriteAt(data, s.offset)
	s.offset += int64(n)
	if err != nil {
		return failedErr(err)
	}
	return nil
}

func (s *FileOutputStream) Flush() error { return nil }

// DirectoryEntry represents a single entry in a directory listing.
type DirectoryEntry struct {
	Name string
	Type uint8
}

// DirectoryEntryStreamResource iterates over directory entries.
type DirectoryEntryStreamResource struct {
	entries []DirectoryEntry
	offset  int
}

func NewDirectoryEntryStreamResource(entries []DirectoryEntry) *DirectoryEntryStreamResource {
	return &DirectoryEntryStreamResource{
		entries: entries,
	}
}

func (d *DirectoryEntryStreamResource) Type() ResourceType { return ResourceDirectoryEntryStream }
func (d *DirectoryEntryStreamResource) Drop()              {}

// ReadNext returns the next entry, or nil at the end of the listing.
func (d *DirectoryEntryStreamResource) ReadNext() *DirectoryEntry {
	if d.offset >= len(d.entries) {
		return nil
	}
	entry := d.entries[d.offset]
	d.offset++
	return &entry
}
