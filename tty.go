package serial

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// TTY is a raw, unbuffered Linux serial port. Read uses poll on the
// device and a self-pipe so that Close from another goroutine unblocks it.
// It is safe for concurrent use by multiple goroutines.
type TTY struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

var _ Port = (*TTY)(nil)

// OpenPort opens cfg.Device in raw mode at cfg.BaudRate. It is the default
// Opener of a Device.
func OpenPort(ctx context.Context, cfg Config) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenTTY(cfg.Device, cfg.BaudRate)
}

// OpenTTY opens device for raw, low-latency, non-buffered operation.
func OpenTTY(device string, baudRate int) (*TTY, error) {
	fd, err := syscall.Open(device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baudToUnix(baudRate)

	// VMIN=1, VTIME=0: a read returns as soon as one byte is available
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &TTY{
		fd:    fd,
		file:  os.NewFile(uintptr(fd), device),
		done:  make(chan struct{}),
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
	}, nil
}

// Read blocks until data is available, the device hangs up (io.EOF) or
// the port is closed (ErrPortClosed).
func (t *TTY) Read(p []byte) (int, error) {
	for {
		pfd := []unix.PollFd{
			{Fd: int32(t.fd), Events: unix.POLLIN},
			{Fd: int32(t.pipeR), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		select {
		case <-t.done:
			return 0, ErrPortClosed
		default:
		}
		if err != nil {
			return 0, err
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return 0, ErrPortClosed
		}
		if pfd[0].Revents&unix.POLLIN != 0 {
			return t.file.Read(p)
		}
		if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return 0, io.EOF
		}
	}
}

func (t *TTY) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, ErrPortClosed
	default:
	}
	return t.file.Write(p)
}

// Close closes the port and unblocks any pending Read.
// Safe to call multiple times; subsequent calls are no-ops.
func (t *TTY) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		// Wake up poll using self-pipe
		unix.Write(t.pipeW, []byte{1})
		err = t.file.Close()
		unix.Close(t.pipeR)
		unix.Close(t.pipeW)
	})
	return err
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	case 460800:
		return unix.B460800
	case 921600:
		return unix.B921600
	default:
		return unix.B115200 // fallback
	}
}
