package main

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// stdinSource is the single owner of the interactive input stream. The
// REPL asks for lines through Request and receives them on Lines, while
// approval prompts read synchronously through ReadLine. The background
// reader only touches the stream while a request is outstanding, and the
// REPL never has one outstanding during a turn, so a prompt shown
// mid-turn gets the next line instead of racing the REPL for it.
type stdinSource struct {
	mu sync.Mutex
	r  *bufio.Reader

	req   chan struct{}
	lines chan string
	errs  chan error
	once  sync.Once
}

func newStdinSource(r io.Reader) *stdinSource {
	return &stdinSource{
		r:     bufio.NewReader(r),
		req:   make(chan struct{}, 1),
		lines: make(chan string),
		errs:  make(chan error, 1),
	}
}

// ReadLine reads one line including the newline, satisfying
// approval.LineReader.
func (s *stdinSource) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.ReadString('\n')
}

// Request asks the background reader for one line. Requests made while
// one is already outstanding coalesce into it.
func (s *stdinSource) Request() {
	s.once.Do(func() { go s.loop() })
	select {
	case s.req <- struct{}{}:
	default:
	}
}

// Lines delivers requested input with the line ending stripped.
func (s *stdinSource) Lines() <-chan string { return s.lines }

// Errs delivers the terminal read error, io.EOF included. After an error
// the reader is done.
func (s *stdinSource) Errs() <-chan error { return s.errs }

func (s *stdinSource) loop() {
	for range s.req {
		line, err := s.ReadLine()
		if line != "" {
			s.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			s.errs <- err
			return
		}
	}
}
