package tuplespace

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// shmDir is where POSIX shared-memory objects live on Linux: shm_open is,
// on Linux, implemented as open() against the tmpfs mounted here - the
// same approach used by the AlephTX-aleph-tx shm package retrieved
// alongside this spec.
const shmDir = "/dev/shm/"

// attachAttempts/attachInterval bound the poll loop an attacher runs
// waiting for the creator to publish the magic tag (§4.1 step 4). The
// spec's prototype uses 10 x 1s; kept identical here.
const (
	attachAttempts = 10
	attachInterval = time.Second
)

// region is the mapped view of a backing shared-memory object.
type region struct {
	name string
	path string
	fd   int
	data []byte
}

func shmPath(name string) string {
	return shmDir + name
}

func lockPath(name string) string {
	return shmPath(name) + ".lock"
}

// openOrCreateRegion implements the bootstrap race of §4.1: try to open an
// existing object; if absent, try to create it exclusively; if creation
// loses the race, retry the open exactly once.
func openOrCreateRegion(name string, size uint32) (*region, bool, error) {
	path := shmPath(name)

	for attempt := 0; attempt < 2; attempt++ {
		fd, err := unix.Open(path, unix.O_RDWR, 0)
		if err == nil {
			r, openErr := attachExisting(name, path, fd)
			return r, false, openErr
		}

		if !errors.Is(err, unix.ENOENT) {
			return nil, false, fmt.Errorf("open %s: %w", path, joinIo(err))
		}

		createFd, createErr := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o600)
		if createErr == nil {
			r, initErr := createNew(name, path, createFd, size)
			return r, true, initErr
		}

		if errors.Is(createErr, unix.EEXIST) {
			// Lost the creation race; another process is the creator.
			// Retry the open exactly once, per §7.
			continue
		}

		return nil, false, fmt.Errorf("create %s: %w", path, joinIo(createErr))
	}

	return nil, false, fmt.Errorf("tuplespace: bootstrap race did not converge for %s: %w", name, ErrIo)
}

// createNew performs the creator's sequence from §4.3: ftruncate, mmap,
// then write version, end cursor, and the magic tag last - the magic
// write is the publish step that lets attachers know the header is valid.
// Any failure unlinks both the region and the lock, per §7.
func createNew(name, path string, fd int, size uint32) (*region, error) {
	l, lockErr := openLock(lockPath(name))
	if lockErr != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)

		return nil, lockErr
	}
	defer l.close()

	// Per §4.3: the lock is created held and released only after the
	// magic tag is published, so any attacher that later acquires it
	// during a get's claim step is guaranteed a fully initialized header.
	if err := l.acquire(); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		_ = unlinkLock(lockPath(name))

		return nil, err
	}

	cleanup := func(err error) (*region, error) {
		_ = l.release()
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		_ = unlinkLock(lockPath(name))

		return nil, err
	}

	if size < dataStart+slotHeaderSize {
		return cleanup(fmt.Errorf("region size %d below minimum %d: %w", size, dataStart+slotHeaderSize, ErrInvalidInput))
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return cleanup(fmt.Errorf("ftruncate %s: %w", path, joinIo(err)))
	}

	data, mmapErr := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		return cleanup(fmt.Errorf("mmap %s: %w", path, joinIo(mmapErr)))
	}

	// 1. version, 2. end cursor, 3. magic (published last), 4. release lock.
	writeVersion(data, currentVersion)
	writeEndCursor(data, dataStart)
	writeMagic(data)

	if err := l.release(); err != nil {
		_ = unix.Munmap(data)

		return cleanup(err)
	}

	return &region{name: name, path: path, fd: fd, data: data}, nil
}

// attachExisting implements the attacher's side of §4.1: wait for the
// object to reach at least header size (the creator ftruncates it only
// after the exclusive create), mmap the region at its on-disk size, poll
// for the magic tag, then verify the version.
func attachExisting(name, path string, fd int) (*region, error) {
	var stat unix.Stat_t

	for i := 0; ; i++ {
		if err := unix.Fstat(fd, &stat); err != nil {
			_ = unix.Close(fd)

			return nil, fmt.Errorf("fstat %s: %w", path, joinIo(err))
		}

		if stat.Size >= dataStart {
			break
		}

		if i+1 >= attachAttempts {
			_ = unix.Close(fd)

			return nil, ErrNotReady
		}

		time.Sleep(attachInterval)
	}

	size := stat.Size

	data, mmapErr := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("mmap %s: %w", path, joinIo(mmapErr))
	}

	ready := false

	for i := 0; i < attachAttempts; i++ {
		if readMagic(data) {
			ready = true
			break
		}

		time.Sleep(attachInterval)
	}

	if !ready {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)

		return nil, ErrNotReady
	}

	if v := readVersion(data); v != currentVersion {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)

		return nil, fmt.Errorf("%s: on-disk version %d, want %d: %w", path, v, currentVersion, ErrVersionMismatch)
	}

	return &region{name: name, path: path, fd: fd, data: data}, nil
}

// close detaches the mapped view and closes the file descriptor. The
// region and its contents persist in /dev/shm.
func (r *region) close() error {
	var err error

	if r.data != nil {
		if e := unix.Munmap(r.data); e != nil {
			err = fmt.Errorf("munmap %s: %w", r.path, joinIo(e))
		}

		r.data = nil
	}

	if r.fd >= 0 {
		if e := unix.Close(r.fd); e != nil && err == nil {
			err = fmt.Errorf("close %s: %w", r.path, joinIo(e))
		}

		r.fd = -1
	}

	return err
}

// unlinkRegion removes the region from the filesystem namespace. Existing
// attachers keep working until they unmap, per usual POSIX semantics.
func unlinkRegion(name string) error {
	if err := unix.Unlink(shmPath(name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink %s: %w", shmPath(name), joinIo(err))
	}

	return nil
}
