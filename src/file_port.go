package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Byte I/O capability over a plain file descriptor
 *		pair, for full duplex tunnels that are not serial
 *		devices: stdin/stdout piped through ssh or socat, or a
 *		pseudo terminal.
 *
 *---------------------------------------------------------------*/

import (
	"os"

	"golang.org/x/sys/unix"
)

// FilePort is a ByteIO over two (possibly identical) open files.
// Readiness is checked with poll(2) so Available never blocks.
type FilePort struct {
	in  *os.File
	out *os.File

	scratch [1]byte
}

func NewFilePort(in *os.File, out *os.File) *FilePort {
	return &FilePort{in: in, out: out}
}

// NewStdioPort tunnels the bus over the process's standard streams.
func NewStdioPort() *FilePort {
	return NewFilePort(os.Stdin, os.Stdout)
}

func (p *FilePort) Available() bool {
	var fds = []unix.PollFd{{Fd: int32(p.in.Fd()), Events: unix.POLLIN}}

	var ready, err = unix.Poll(fds, 0)

	return err == nil && ready > 0 && fds[0].Revents&unix.POLLIN != 0
}

func (p *FilePort) ReadByte() byte {
	var got, err = p.in.Read(p.scratch[:])
	if err != nil || got != 1 {
		return 0
	}
	return p.scratch[0]
}

func (p *FilePort) WriteByte(chr byte) {
	p.scratch[0] = chr
	p.out.Write(p.scratch[:]) //nolint:errcheck // best effort, per the capability contract
}

/*-------------------------------------------------------------------
 *
 * Name:	SetRawMode
 *
 * Purpose:	Put a terminal-ish descriptor into raw mode.
 *
 * Description:	A pty's line discipline will otherwise echo input and
 *		rewrite \n, and EOT happens to be \n, so raw mode is
 *		not optional for tunnels over terminals.
 *
 *---------------------------------------------------------------*/

func SetRawMode(f *os.File) error {
	var fd = int(f.Fd())

	var tio, err = unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= unix.CS8
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS, tio)
}
