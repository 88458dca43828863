// Package ioctl encodes Linux ioctl request numbers and issues them.
package ioctl

import (
	"golang.org/x/sys/unix"
)

const (
	nrBits   = 8
	typeBits = 8
	sizeBits = 14

	nrShift   = 0
	typeShift = nrShift + nrBits
	sizeShift = typeShift + typeBits
	dirShift  = sizeShift + sizeBits

	dirNone  = 0
	dirWrite = 1
	dirRead  = 2
)

// IoC builds a request number the way the kernel's _IOC macro does.
func IoC(dir, t, nr, size uintptr) uintptr {
	return (dir << dirShift) | (t << typeShift) | (nr << nrShift) | (size << sizeShift)
}

func Io(t, nr uintptr) uintptr {
	return IoC(dirNone, t, nr, 0)
}

func IoR(t, nr, size uintptr) uintptr {
	return IoC(dirRead, t, nr, size)
}

func IoW(t, nr, size uintptr) uintptr {
	return IoC(dirWrite, t, nr, size)
}

func IoRW(t, nr, size uintptr) uintptr {
	return IoC(dirRead|dirWrite, t, nr, size)
}

// Ioctl issues op on fd, restarting when interrupted by a signal.
func Ioctl(fd, op, arg uintptr) error {
	for {
		_, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)
		switch ep {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return ep
		}
	}
}
