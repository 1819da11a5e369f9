package coordserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits.
const (
	// MaxArrayLen limits the number of elements in a command array.
	MaxArrayLen = 1024

	// MaxBulkLen limits one bulk string. Relay messages are capped well
	// below this by the HTTP and gateway layers.
	MaxBulkLen = 512 * 1024

	// MaxInlineLen limits inline command line length.
	MaxInlineLen = 4 * 1024

	// maxHeaderLen bounds "*<n>" and "$<n>" header lines.
	maxHeaderLen = 64
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// ReadCommand reads one command, either a RESP array of bulk strings or an
// inline command line. An empty command yields nil args.
func ReadCommand(r *bufio.Reader) ([][]byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == '*' {
		return readArray(r)
	}

	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(fields))
	for i, f := range fields {
		out[i] = []byte(f)
	}
	return out, nil
}

func readArray(r *bufio.Reader) ([][]byte, error) {
	n, err := readLength(r, '*')
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulk(r)
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
	}
	return out, nil
}

func readBulk(r *bufio.Reader) ([]byte, error) {
	n, err := readLength(r, '$')
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if n > MaxBulkLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return nil, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	return buf[:n], nil
}

// readLength reads a "<prefix><int>\r\n" header.
func readLength(r *bufio.Reader, prefix byte) (int, error) {
	line, err := readLine(r, maxHeaderLen)
	if err != nil {
		return 0, err
	}
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("%w: expected '%c' header", ErrProtocol, prefix)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[1:])
	}
	return n, nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if len(buf) > maxLen {
			return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}

	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}

// Writer encodes RESP2 replies. Errors are sticky: after the first failed
// write every call is a no-op and Err reports the failure.
type Writer struct {
	bw  *bufio.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

func (w *Writer) write(parts ...string) {
	for _, p := range parts {
		if w.err != nil {
			return
		}
		_, w.err = w.bw.WriteString(p)
	}
}

// SimpleString writes +s.
func (w *Writer) SimpleString(s string) {
	w.write("+", s, "\r\n")
}

// Error writes -msg. CR and LF in msg are replaced by spaces.
func (w *Writer) Error(msg string) {
	if strings.ContainsAny(msg, "\r\n") {
		msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
	}
	w.write("-", msg, "\r\n")
}

// Integer writes :n.
func (w *Writer) Integer(n int64) {
	w.write(":", strconv.FormatInt(n, 10), "\r\n")
}

// Null writes the RESP2 null bulk string.
func (w *Writer) Null() {
	w.write("$-1\r\n")
}

// Bulk writes a bulk string.
func (w *Writer) Bulk(b []byte) {
	w.write("$", strconv.Itoa(len(b)), "\r\n", string(b), "\r\n")
}

// BulkString writes s as a bulk string.
func (w *Writer) BulkString(s string) {
	w.write("$", strconv.Itoa(len(s)), "\r\n", s, "\r\n")
}

// ArrayHeader writes *n.
func (w *Writer) ArrayHeader(n int) {
	w.write("*", strconv.Itoa(n), "\r\n")
}

// StringArray writes an array of bulk strings.
func (w *Writer) StringArray(items []string) {
	w.ArrayHeader(len(items))
	for _, s := range items {
		w.BulkString(s)
	}
}

// Flush writes buffered replies to the connection.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.bw.Flush()
	return w.err
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

func normalizeCommandName(b []byte) string {
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}
