//go:build linux

package player

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// probeImageID stays clear of CanvasImageID
	probeImageID = 999
	probeShmName = "/lipsync-shm-probe"
)

// ShmSupported reports whether /dev/shm exists and the terminal accepts
// kitty t=s (shared memory) transmission. It reads the reply from stdin, so
// call it before the TUI takes over the terminal.
func ShmSupported() bool {
	if info, err := os.Stat("/dev/shm"); err != nil || !info.IsDir() {
		return false
	}

	var reply string
	err := withRawStdin(func() error {
		path := "/dev/shm" + probeShmName
		if err := os.WriteFile(path, []byte{0, 0, 0}, 0600); err != nil {
			return err
		}
		defer os.Remove(path)

		// no q= so the terminal answers \x1b_Gi=<id>;OK\x1b\\ on success
		name := base64.StdEncoding.EncodeToString([]byte(probeShmName))
		fmt.Fprintf(os.Stdout, "\x1b_Ga=T,f=24,s=1,v=1,i=%d,t=s;%s\x1b\\", probeImageID, name)

		buf := make([]byte, 256)
		n, _ := os.Stdin.Read(buf)
		reply = string(buf[:n])

		fmt.Fprintf(os.Stdout, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", probeImageID)
		return nil
	})
	return err == nil && strings.Contains(reply, "OK")
}

// withRawStdin runs fn with stdin in non-canonical mode and a 200ms read
// timeout, restoring the previous settings afterwards.
func withRawStdin(fn func() error) error {
	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	raw := *saved
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG
	raw.Iflag &^= unix.IXON | unix.ICRNL
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 2
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return err
	}
	defer unix.IoctlSetTermios(fd, unix.TCSETS, saved)

	// drop anything typed before the query
	pending := make([]byte, 256)
	os.Stdin.Read(pending)

	return fn()
}
