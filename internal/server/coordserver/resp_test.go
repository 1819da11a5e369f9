package coordserver

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "array PING",
			input: "*1\r\n$4\r\nPING\r\n",
			want:  []string{"PING"},
		},
		{
			name:  "HINCRBY",
			input: "*4\r\n$7\r\nHINCRBY\r\n$16\r\nroom-connections\r\n$5\r\nlobby\r\n$2\r\n-1\r\n",
			want:  []string{"HINCRBY", "room-connections", "lobby", "-1"},
		},
		{
			name:  "binary-safe payload",
			input: "*3\r\n$7\r\nPUBLISH\r\n$5\r\nlobby\r\n$4\r\na\r\nb\r\n",
			want:  []string{"PUBLISH", "lobby", "a\r\nb"},
		},
		{
			name:  "inline command",
			input: "SMEMBERS subscribed-rooms\r\n",
			want:  []string{"SMEMBERS", "subscribed-rooms"},
		},
		{
			name:  "empty array",
			input: "*0\r\n",
			want:  nil,
		},
		{
			name:  "blank inline line",
			input: "   \r\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadCommand(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("ReadCommand() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if string(got[i]) != want {
					t.Errorf("arg[%d] = %q, want %q", i, got[i], want)
				}
			}
		})
	}
}

func TestReadCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"bad array length", "*x\r\n", ErrProtocol},
		{"missing bulk header", "*1\r\n:1\r\n", ErrProtocol},
		{"bad bulk terminator", "*1\r\n$4\r\nPINGxx", ErrProtocol},
		{"negative bulk length", "*1\r\n$-5\r\n", ErrProtocol},
		{"missing CRLF", "PING\n", ErrProtocol},
		{"array too long", "*1025\r\n", ErrLimitExceeded},
		{"bulk too long", "*1\r\n$524289\r\n", ErrLimitExceeded},
		{"inline too long", strings.Repeat("a", MaxInlineLen+1) + "\r\n", ErrLimitExceeded},
		{"truncated", "*2\r\n$4\r\nPING\r\n", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCommand(bufio.NewReader(strings.NewReader(tt.input)))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadCommand() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadCommand_Pipelined(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("*1\r\n$4\r\nPING\r\nPING hello\r\n"))

	first, err := ReadCommand(r)
	if err != nil || len(first) != 1 {
		t.Fatalf("first = %q, %v", first, err)
	}
	second, err := ReadCommand(r)
	if err != nil || len(second) != 2 || string(second[1]) != "hello" {
		t.Fatalf("second = %q, %v", second, err)
	}
	if _, err := ReadCommand(r); !errors.Is(err, io.EOF) {
		t.Errorf("third error = %v, want EOF", err)
	}
}

func TestWriter(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"simple string", func(w *Writer) { w.SimpleString("OK") }, "+OK\r\n"},
		{"error", func(w *Writer) { w.Error("ERR boom") }, "-ERR boom\r\n"},
		{"error strips newlines", func(w *Writer) { w.Error("ERR a\r\nb") }, "-ERR a  b\r\n"},
		{"integer", func(w *Writer) { w.Integer(-3) }, ":-3\r\n"},
		{"null", func(w *Writer) { w.Null() }, "$-1\r\n"},
		{"bulk", func(w *Writer) { w.Bulk([]byte("hi")) }, "$2\r\nhi\r\n"},
		{"empty bulk", func(w *Writer) { w.BulkString("") }, "$0\r\n\r\n"},
		{
			name:  "string array",
			write: func(w *Writer) { w.StringArray([]string{"a", "bc"}) },
			want:  "*2\r\n$1\r\na\r\n$2\r\nbc\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf)
			tt.write(w)
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("wrote %q, want %q", got, tt.want)
			}
		})
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriter_StickyError(t *testing.T) {
	w := NewWriter(failWriter{})
	w.SimpleString("OK")
	if err := w.Flush(); err == nil {
		t.Fatal("Flush() should fail")
	}
	w.Integer(1)
	if w.Err() == nil {
		t.Error("Err() should keep the first failure")
	}
}

func TestNormalizeCommandName(t *testing.T) {
	for in, want := range map[string]string{
		"ping":    "PING",
		"Publish": "PUBLISH",
		"SADD":    "SADD",
	} {
		if got := normalizeCommandName([]byte(in)); got != want {
			t.Errorf("normalizeCommandName(%q) = %q, want %q", in, got, want)
		}
	}
}
