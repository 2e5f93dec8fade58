// Package reader implements the bounded, poll-aware regular-file read
// contract of spec.md §4.C2: at most R bytes, non-blocking with a
// poll(2) timeout when requested, and a full errno-to-class mapping so
// every source-side failure becomes a statistics counter rather than an
// exception.
package reader

import (
	"golang.org/x/sys/unix"
)

// ErrClass is the source-side error taxonomy from spec.md §7.
type ErrClass int

const (
	ErrNone ErrClass = iota
	ErrAccessDenied
	ErrNotPermitted
	ErrIO
	ErrNoData
	ErrMissingDevice // ENOENT | ENODEV | ENXIO
	ErrTimeout
	ErrOther
)

// rechunk is the re-read chunk size: a read shorter than this signals end
// of available data (spec.md §4.C2).
const rechunk = 1024

// Result is the outcome of a bounded read.
type Result struct {
	Data             []byte
	ModeBits         uint32 // recovered via fstat, or via the EACCES stat fallback
	AtRegLen         bool
	ReadFoundNothing bool
	Class            ErrClass
	Err              error
}

// classify maps a raw errno into the source-side error taxonomy.
func classify(errno unix.Errno) ErrClass {
	switch errno {
	case unix.EACCES:
		return ErrAccessDenied
	case unix.EPERM:
		return ErrNotPermitted
	case unix.EIO:
		return ErrIO
	case unix.ENODATA:
		return ErrNoData
	case unix.ENOENT, unix.ENODEV, unix.ENXIO:
		return ErrMissingDevice
	default:
		return ErrOther
	}
}

// Read performs the §4.C2 contract: open path read-only (non-blocking if
// waitMS > 0 and maxLen > 0), read up to maxLen bytes, and recover from
// EAGAIN by polling the descriptor for up to waitMS milliseconds.
func Read(path string, maxLen int, waitMS int) Result {
	flags := unix.O_RDONLY
	nonblocking := waitMS > 0 && maxLen > 0
	if nonblocking {
		flags |= unix.O_NONBLOCK
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		errno, _ := err.(unix.Errno)
		if errno == unix.EACCES {
			// EACCES on open: recover mode bits via stat() and still
			// record the node, with zero-length contents.
			var st unix.Stat_t
			statErr := unix.Stat(path, &st)
			if statErr == nil {
				return Result{
					ModeBits: uint32(st.Mode) & 0o777,
					Class:    ErrAccessDenied,
					Err:      err,
				}
			}
			statErrno, _ := statErr.(unix.Errno)
			return Result{Class: classify(statErrno), Err: statErr}
		}
		return Result{Class: classify(errno), Err: err}
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Result{Class: ErrOther, Err: err}
	}
	modeBits := uint32(st.Mode) & 0o777

	if maxLen <= 0 {
		return Result{ModeBits: modeBits, ReadFoundNothing: true}
	}

	buf := make([]byte, 0, maxLen)
	chunk := make([]byte, rechunk)

	for len(buf) < maxLen {
		want := rechunk
		if remaining := maxLen - len(buf); remaining < want {
			want = remaining
		}

		n, err := unix.Read(fd, chunk[:want])
		if err != nil {
			errno, _ := err.(unix.Errno)
			if errno == unix.EAGAIN && nonblocking {
				n2, class, waitErr := waitAndRetry(fd, chunk[:want], waitMS)
				if waitErr != nil {
					data := buf
					foundNothing := len(buf) == 0
					if class == ErrTimeout {
						// A poll timeout means no more data arrived; bytes
						// already read in prior chunks don't change that —
						// the whole read is treated as zero-length content.
						data = nil
						foundNothing = true
					}
					return Result{
						Data:             data,
						ModeBits:         modeBits,
						ReadFoundNothing: foundNothing,
						Class:            class,
						Err:              waitErr,
					}
				}
				if n2 == 0 {
					break
				}
				buf = append(buf, chunk[:n2]...)
				if n2 < want {
					break
				}
				continue
			}
			return Result{
				Data:             buf,
				ModeBits:         modeBits,
				ReadFoundNothing: len(buf) == 0,
				Class:            classify(errno),
				Err:              err,
			}
		}

		if n == 0 {
			break
		}
		buf = append(buf, chunk[:n]...)
		if n < want {
			break
		}
	}

	res := Result{
		Data:             buf,
		ModeBits:         modeBits,
		ReadFoundNothing: len(buf) == 0,
	}
	if len(buf) >= maxLen {
		res.AtRegLen = true
	}
	return res
}

// waitAndRetry polls fd for up to waitMS milliseconds after an EAGAIN,
// then retries the read once. POLLERR is promoted to EPROTO (folded into
// ErrOther, since EPROTO has no dedicated counter in spec.md §7).
func waitAndRetry(fd int, buf []byte, waitMS int) (int, ErrClass, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, waitMS)
	if err != nil {
		return 0, ErrOther, err
	}
	if n == 0 {
		return 0, ErrTimeout, errTimeout
	}
	if fds[0].Revents&unix.POLLERR != 0 {
		return 0, ErrOther, errProto
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		return 0, ErrOther, errUnexpectedRevents
	}

	rn, err := unix.Read(fd, buf)
	if err != nil {
		errno, _ := err.(unix.Errno)
		return 0, classify(errno), err
	}
	return rn, ErrNone, nil
}

var (
	errTimeout           = pollTimeoutErr{}
	errProto             = unix.EPROTO
	errUnexpectedRevents = pollUnexpectedErr{}
)

type pollTimeoutErr struct{}

func (pollTimeoutErr) Error() string { return "poll: timed out waiting for readable data" }

type pollUnexpectedErr struct{}

func (pollUnexpectedErr) Error() string { return "poll: returned without POLLIN or POLLERR" }
