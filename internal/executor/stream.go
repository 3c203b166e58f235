package executor

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/text/encoding"
)

const maxLineSize = 1024 * 1024

// startStreaming starts cmd with stdout and stderr merged into the returned
// reader, either through a pipe or a pseudo terminal.
func startStreaming(cmd *exec.Cmd, usePTY bool) (io.ReadCloser, error) {
	if usePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		return ptmx, nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child owns the write side now
	pw.Close()
	return pr, nil
}

func scanLines(r io.Reader, enc encoding.Encoding, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line, err := decode(scanner.Bytes(), enc)
		if err != nil {
			continue
		}
		onLine(strings.TrimRight(line, "\r"))
	}
}
