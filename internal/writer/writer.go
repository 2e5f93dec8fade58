// Package writer implements the destination-side node materialization
// contract of spec.md §4.C3: regular-file write, symlink creation,
// mknod, and directory creation with owner-write fixup.
package writer

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrClass is the destination-side error taxonomy from spec.md §7.
type ErrClass int

const (
	ErrNone ErrClass = iota
	ErrAccessDenied
	ErrNotPermitted
	ErrIO
	ErrMissingDevice
	ErrOther
)

func classify(errno unix.Errno) ErrClass {
	switch errno {
	case unix.EACCES:
		return ErrAccessDenied
	case unix.EPERM:
		return ErrNotPermitted
	case unix.EIO:
		return ErrIO
	case unix.ENOENT, unix.ENODEV, unix.ENXIO:
		return ErrMissingDevice
	default:
		return ErrOther
	}
}

// DirStatus is the outcome of creating a destination directory.
type DirStatus int

const (
	DirFail DirStatus = iota
	DirCreated
	DirAlreadyExists
)

// WriteRegular opens-or-creates dstPath and writes data. The mode is the
// bottom 9 bits of the source mode, OR'd with owner read/write so a later
// run into the same destination can overwrite the file. A short write is
// not retried and is not reported as an error; the number of bytes
// written is returned.
func WriteRegular(dstPath string, srcMode uint32, data []byte) (written int, class ErrClass, err error) {
	mode := (srcMode & 0o777) | 0o600

	fd, oerr := unix.Open(dstPath, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, mode)
	if oerr != nil {
		errno, _ := oerr.(unix.Errno)
		return 0, classify(errno), oerr
	}
	defer unix.Close(fd)

	if len(data) == 0 {
		return 0, ErrNone, nil
	}

	n, werr := unix.Write(fd, data)
	if werr != nil {
		errno, _ := werr.(unix.Errno)
		return n, classify(errno), werr
	}
	return n, ErrNone, nil
}

// WriteSymlink creates dstPath as a symlink carrying target verbatim. If
// extra is set, it verifies the link doesn't dangle (for the extra-check
// statistics) without altering behavior.
func WriteSymlink(dstPath, target string, extra bool) (dangling bool, err error) {
	_ = unix.Unlink(dstPath) // may already exist from a prior aborted run
	if err := unix.Symlink(target, dstPath); err != nil {
		return false, err
	}
	if !extra {
		return false, nil
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(dstPath), target)
	}
	var st unix.Stat_t
	if statErr := unix.Lstat(resolved, &st); statErr != nil {
		return true, nil
	}
	return false, nil
}

// WriteDevice creates a device node with mknod(2). Only privileged
// processes succeed; failure is recorded, never fatal.
func WriteDevice(dstPath string, mode uint32, rdev uint64) (class ErrClass, err error) {
	if err := unix.Mknod(dstPath, mode, int(rdev)); err != nil {
		errno, _ := err.(unix.Errno)
		switch errno {
		case unix.EACCES:
			return ErrAccessDenied, err
		case unix.EPERM:
			return ErrNotPermitted, err
		default:
			return ErrOther, err
		}
	}
	return ErrNone, nil
}

// WriteDirectory creates dstPath. If the source directory lacks
// owner-write, it's added on the destination so subsequent writes into
// it succeed.
func WriteDirectory(dstPath string, srcMode uint32) DirStatus {
	mode := (srcMode & 0o777) | 0o200

	if err := unix.Mkdir(dstPath, mode); err != nil {
		errno, _ := err.(unix.Errno)
		if errno == unix.EEXIST {
			return DirAlreadyExists
		}
		return DirFail
	}
	return DirCreated
}
