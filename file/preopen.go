package file

import (
	"context"
	"io/fs"
	"strings"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi/filesystem"
	"github.com/wippyai/wasync/wasi/host"
)

// mount is the preopen a path resolved to. release drops its descriptor.
type mount struct {
	h      *host.WASIHost
	handle uint32
	rel    string
}

func (m *mount) release() {
	_ = m.h.Types.ResourceDropDescriptor(context.Background(), m.handle)
}

// resolve finds the most specific preopen containing path. Matching is by
// whole path components, so "/data" does not contain "/database".
func resolve(ctx context.Context, h *host.WASIHost, op, path string) (*mount, error) {
	var found *mount
	// preopens come longest guest path first and every call hands out fresh
	// descriptors; keep the first match and drop the rest
	for _, p := range h.Preopens.GetDirectories(ctx) {
		if found == nil {
			if rel, ok := within(p.Path, path); ok {
				found = &mount{h: h, handle: p.Handle, rel: rel}
				continue
			}
		}
		_ = h.Types.ResourceDropDescriptor(ctx, p.Handle)
	}
	if found == nil {
		return nil, errors.WrapOp(errors.PhaseFilesystem, errors.KindNotFound, op, path, fs.ErrNotExist)
	}
	return found, nil
}

func within(guest, path string) (string, bool) {
	switch {
	case path == guest:
		return ".", true
	case guest == "/":
		if strings.HasPrefix(path, "/") {
			return relative(path), true
		}
	case guest == ".":
		if !strings.HasPrefix(path, "/") {
			return relative(path), true
		}
	case strings.HasPrefix(path, strings.TrimSuffix(guest, "/")+"/"):
		return relative(path[len(guest):]), true
	}
	return "", false
}

func relative(p string) string {
	p = strings.TrimPrefix(strings.TrimLeft(p, "/"), "./")
	if p == "" {
		return "."
	}
	return p
}

// hostError wraps a host error code so it matches the io/fs sentinels.
func hostError(op, path string, err *filesystem.Error) error {
	return errors.WrapOp(errors.PhaseFilesystem, kindOf(err.Code), op, path, err)
}

func kindOf(code filesystem.ErrorCode) errors.Kind {
	switch code {
	case filesystem.ErrorNoEntry:
		return errors.KindNotFound
	case filesystem.ErrorExist:
		return errors.KindExists
	case filesystem.ErrorAccess, filesystem.ErrorNotPermitted, filesystem.ErrorReadOnly:
		return errors.KindPermission
	case filesystem.ErrorBadDescriptor:
		return errors.KindInvalidHandle
	case filesystem.ErrorInvalid, filesystem.ErrorInvalidSeek, filesystem.ErrorIsDirectory,
		filesystem.ErrorNotDirectory, filesystem.ErrorNameTooLong:
		return errors.KindInvalidInput
	case filesystem.ErrorUnsupported:
		return errors.KindUnsupported
	case filesystem.ErrorWouldBlock:
		return errors.KindWouldBlock
	default:
		return errors.KindIO
	}
}
