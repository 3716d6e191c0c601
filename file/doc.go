// Package file reads and writes files in the host's preopened directories
// from executor tasks.
//
// Paths are guest paths: a path resolves against the longest preopen whose
// guest path is a prefix of it, by whole components. Paths outside every
// preopen fail with fs.ErrNotExist; host error codes match the io/fs
// sentinels through errors.Is.
//
//	f, err := file.Create(ctx, h, "/data/out.txt")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	_, err = f.Write(ctx, []byte("hello"))
package file
