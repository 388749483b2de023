// Copyright 2024-2026 Aiku AI

package connector

import (
	"bufio"
	"io"
	"iter"
	"net"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// maxLineLength bounds a single inbound line. Longer lines end the
	// session.
	maxLineLength = 8 * 1024

	outboundQueueSize = 256
)

// lineReader splits an inbound byte stream into IRC lines. Bytes that are
// not valid UTF-8 are dropped.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	decoded := transform.NewReader(r, runes.Remove(runes.Predicate(func(r rune) bool {
		return r == utf8.RuneError
	})))
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, 512), maxLineLength)
	return &lineReader{scanner: scanner}
}

// Lines yields each non-empty line with surrounding whitespace removed.
func (lr *lineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for lr.scanner.Scan() {
			line := strings.TrimSpace(lr.scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Err returns the error that ended Lines, or nil at end of stream.
func (lr *lineReader) Err() error {
	return lr.scanner.Err()
}

// lineSender queues a line for delivery to the IRC client. This allows tests
// to capture replies without a network connection.
type lineSender interface {
	SendLine(line string)
}

// connWriter drains a session's outbound queue onto its connection. A failed
// write closes the connection, which ends the session's read loop.
type connWriter struct {
	conn  net.Conn
	queue chan string
	log   zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	finished chan struct{}
}

var _ lineSender = (*connWriter)(nil)

func newConnWriter(conn net.Conn, log zerolog.Logger) *connWriter {
	return &connWriter{
		conn:     conn,
		queue:    make(chan string, outboundQueueSize),
		log:      log,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// SendLine queues line. It blocks while the queue is full and drops the
// line once the writer is closed.
func (w *connWriter) SendLine(line string) {
	select {
	case w.queue <- line:
	case <-w.stop:
	}
}

func (w *connWriter) run() {
	defer close(w.finished)
	for {
		select {
		case line := <-w.queue:
			if !w.write(line) {
				return
			}
		case <-w.stop:
			for {
				select {
				case line := <-w.queue:
					if !w.write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (w *connWriter) write(line string) bool {
	w.log.Debug().Str("line", line).Msg(">")
	if _, err := io.WriteString(w.conn, line+"\r\n"); err != nil {
		w.log.Debug().Err(err).Msg("Failed to write to IRC client, closing connection")
		_ = w.conn.Close()
		return false
	}
	return true
}

// Close flushes lines queued so far and waits for the writer to exit.
func (w *connWriter) Close() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.finished
}
