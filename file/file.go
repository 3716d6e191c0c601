package file

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/filesystem"
	"github.com/wippyai/wasync/wasi/host"
)

// File is an open file in one of the host's preopened directories. Reads
// and writes go through a short-lived host stream at the current position.
type File struct {
	h      *host.WASIHost
	path   string
	pos    uint64
	desc   uint32
	append bool
	closed bool
}

// OpenOptions selects how a file is opened.
type OpenOptions struct {
	Read     bool
	Write    bool
	Create   bool
	Truncate bool
	Append   bool
}

// Open opens path for reading.
func Open(ctx context.Context, h *host.WASIHost, path string) (*File, error) {
	return OpenOptions{Read: true}.Open(ctx, h, path)
}

// Create opens path for writing, creating or truncating it.
func Create(ctx context.Context, h *host.WASIHost, path string) (*File, error) {
	return OpenOptions{Write: true, Create: true, Truncate: true}.Open(ctx, h, path)
}

// Open opens path with o. The path must lie under a preopened directory.
func (o OpenOptions) Open(ctx context.Context, h *host.WASIHost, path string) (*File, error) {
	m, err := resolve(ctx, h, "open", path)
	if err != nil {
		return nil, err
	}
	defer m.release()

	var openFlags filesystem.OpenFlags
	if o.Create {
		openFlags |= filesystem.OpenCreate
	}
	if o.Truncate {
		openFlags |= filesystem.OpenTruncate
	}
	var flags wasi.DescriptorFlags
	if o.Read {
		flags |= wasi.DescriptorRead
	}
	if o.Write || o.Append {
		flags |= wasi.DescriptorWrite
	}

	desc, ferr := h.Types.MethodDescriptorOpenAt(ctx, m.handle, filesystem.PathSymlinkFollow, m.rel, openFlags, flags)
	if ferr != nil {
		return nil, hostError("open", path, ferr)
	}
	f := &File{h: h, desc: desc, path: path, append: o.Append}
	if o.Append {
		md, err := f.Metadata(ctx)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.pos = md.Size
	}
	return f, nil
}

func (f *File) Name() string { return f.path }

func (f *File) checkOpen(op string) error {
	if f.closed {
		return errors.WrapOp(errors.PhaseFilesystem, errors.KindClosed, op, f.path, fs.ErrClosed)
	}
	return nil
}

// Read reads up to len(p) bytes at the current position.
func (f *File) Read(ctx context.Context, p []byte) (n int, err error) {
	if err := f.checkOpen("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	handle, ferr := f.h.Types.MethodDescriptorReadViaStream(ctx, f.desc, f.pos)
	if ferr != nil {
		return 0, hostError("read", f.path, ferr)
	}
	in := stream.NewInputStream(f.h, handle)
	defer func() {
		if cerr := in.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := in.Readable(ctx); err != nil {
		return 0, err
	}
	n, err = in.Read(ctx, p)
	f.pos += uint64(n)
	return n, err
}

// Write writes all of p at the current position, or at the end of the file
// when opened for append, then syncs the data to storage.
func (f *File) Write(ctx context.Context, p []byte) (n int, err error) {
	if err := f.checkOpen("write"); err != nil {
		return 0, err
	}
	var (
		handle uint32
		ferr   *filesystem.Error
	)
	if f.append {
		handle, ferr = f.h.Types.MethodDescriptorAppendViaStream(ctx, f.desc)
	} else {
		handle, ferr = f.h.Types.MethodDescriptorWriteViaStream(ctx, f.desc, f.pos)
	}
	if ferr != nil {
		return 0, hostError("write", f.path, ferr)
	}
	out := stream.NewOutputStream(f.h, handle)
	n, err = out.Write(ctx, p)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}

	if err := f.SyncData(ctx); err != nil {
		return n, err
	}
	if f.append {
		md, err := f.Metadata(ctx)
		if err != nil {
			return n, err
		}
		f.pos = md.Size
	} else {
		f.pos += uint64(n)
	}
	return n, nil
}

// Seek sets the position for the next Read or Write. Positions before the
// start of the file are rejected.
func (f *File) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	if err := f.checkOpen("seek"); err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(f.pos)
	case io.SeekEnd:
		md, err := f.Metadata(ctx)
		if err != nil {
			return 0, err
		}
		base = int64(md.Size)
	default:
		return 0, errors.New(errors.PhaseFilesystem, errors.KindInvalidInput).
			Op("seek").Path(f.path).Detail("invalid whence %d", whence).Cause(fs.ErrInvalid).Build()
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New(errors.PhaseFilesystem, errors.KindInvalidInput).
			Op("seek").Path(f.path).Detail("seek to %d before start of file", pos).Cause(fs.ErrInvalid).Build()
	}
	f.pos = uint64(pos)
	return pos, nil
}

// SetLen truncates or extends the file.
func (f *File) SetLen(ctx context.Context, size uint64) error {
	if err := f.checkOpen("set-len"); err != nil {
		return err
	}
	if ferr := f.h.Types.MethodDescriptorSetSize(ctx, f.desc, size); ferr != nil {
		return hostError("set-len", f.path, ferr)
	}
	return nil
}

// SyncData flushes file contents to storage.
func (f *File) SyncData(ctx context.Context) error {
	if err := f.checkOpen("sync-data"); err != nil {
		return err
	}
	if ferr := f.h.Types.MethodDescriptorSyncData(ctx, f.desc); ferr != nil {
		return hostError("sync-data", f.path, ferr)
	}
	return nil
}

// Metadata describes a file or directory.
type Metadata struct {
	Modified time.Time
	Accessed time.Time
	Size     uint64
	Type     filesystem.DescriptorType
}

func (m Metadata) IsDir() bool  { return m.Type == filesystem.DescriptorTypeDirectory }
func (m Metadata) IsFile() bool { return m.Type == filesystem.DescriptorTypeRegularFile }

// Metadata stats the open file. Timestamps the host does not report are zero.
func (f *File) Metadata(ctx context.Context) (Metadata, error) {
	if err := f.checkOpen("metadata"); err != nil {
		return Metadata{}, err
	}
	st, ferr := f.h.Types.MethodDescriptorStat(ctx, f.desc)
	if ferr != nil {
		return Metadata{}, hostError("metadata", f.path, ferr)
	}
	md := Metadata{Type: st.Type, Size: st.Size}
	if st.DataModificationTimestamp != nil {
		md.Modified = st.DataModificationTimestamp.Time()
	}
	if st.DataAccessTimestamp != nil {
		md.Accessed = st.DataAccessTimestamp.Time()
	}
	return md, nil
}

// Close drops the descriptor. Later calls fail with fs.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if ferr := f.h.Types.ResourceDropDescriptor(context.Background(), f.desc); ferr != nil {
		return hostError("close", f.path, ferr)
	}
	return nil
}
