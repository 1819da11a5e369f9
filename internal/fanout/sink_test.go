package fanout

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/yndnr/roomrelay/internal/core/domain"
)

type fakeSession struct {
	id  string
	err error

	mu       sync.Mutex
	received []string
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(group string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.received = append(f.received, group+":"+string(payload))
	return nil
}

func (f *fakeSession) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func TestSink_DeliverReachesOnlyGroupMembers(t *testing.T) {
	s := New()
	c1 := &fakeSession{id: "c1"}
	c2 := &fakeSession{id: "c2"}
	c3 := &fakeSession{id: "c3"}
	for _, c := range []*fakeSession{c1, c2, c3} {
		s.Attach(c)
	}

	s.Join("c1", "room-A")
	s.Join("c2", "room-A")
	s.Join("c3", "room-B")

	s.Deliver("room-A", []byte("hi"))

	want := []string{"room-A:hi"}
	if got := c1.messages(); !reflect.DeepEqual(got, want) {
		t.Errorf("c1 received %v, want %v", got, want)
	}
	if got := c2.messages(); !reflect.DeepEqual(got, want) {
		t.Errorf("c2 received %v, want %v", got, want)
	}
	if got := c3.messages(); len(got) != 0 {
		t.Errorf("c3 received %v, want nothing", got)
	}
}

func TestSink_DeliverContinuesPastFailures(t *testing.T) {
	s := New()
	broken := &fakeSession{id: "broken", err: errors.New("write: broken pipe")}
	ok := &fakeSession{id: "ok"}
	s.Attach(broken)
	s.Attach(ok)
	s.Join("broken", "g")
	s.Join("ok", "g")

	s.Deliver("g", []byte("x"))

	if got := ok.messages(); len(got) != 1 {
		t.Errorf("healthy session received %v, want one message", got)
	}
}

func TestSink_DeliverEmptyGroup(t *testing.T) {
	s := New()
	// Must not panic.
	s.Deliver("nobody-here", []byte("x"))
}

func TestSink_JoinUnknownSession(t *testing.T) {
	s := New()

	_, err := s.Join("ghost", "g")
	if !errors.Is(err, domain.ErrUnknownConnection) {
		t.Errorf("Join(ghost) error = %v, want ErrUnknownConnection", err)
	}
	if got := s.LocalCount("g"); got != 0 {
		t.Errorf("LocalCount(g) = %d, want 0", got)
	}
}

func TestSink_DetachReturnsGroups(t *testing.T) {
	s := New()
	c1 := &fakeSession{id: "c1"}
	c2 := &fakeSession{id: "c2"}
	s.Attach(c1)
	s.Attach(c2)

	for _, g := range []string{"c", "a", "b"} {
		s.Join("c1", g)
	}
	s.Join("c1", "a") // duplicate
	s.Join("c2", "a")

	groups := s.Detach("c1")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(groups, want) {
		t.Errorf("Detach(c1) = %v, want %v", groups, want)
	}

	tests := []struct {
		group string
		want  int
	}{
		{"a", 1},
		{"b", 0},
		{"c", 0},
	}
	for _, tt := range tests {
		if got := s.LocalCount(tt.group); got != tt.want {
			t.Errorf("LocalCount(%s) = %d, want %d", tt.group, got, tt.want)
		}
	}

	if got := s.Detach("c1"); got != nil {
		t.Errorf("second Detach(c1) = %v, want nil", got)
	}
	if got := s.Sessions(); got != 1 {
		t.Errorf("Sessions() = %d, want 1", got)
	}
}

func TestSink_DetachedSessionGetsNothing(t *testing.T) {
	s := New()
	c1 := &fakeSession{id: "c1"}
	s.Attach(c1)
	s.Join("c1", "g")
	s.Detach("c1")

	s.Deliver("g", []byte("late"))

	if got := c1.messages(); len(got) != 0 {
		t.Errorf("detached session received %v", got)
	}
}

func TestSink_JoinReportsNewGroups(t *testing.T) {
	s := New()
	s.Attach(&fakeSession{id: "c1"})

	tests := []struct {
		group string
		want  bool
	}{
		{"a", true},
		{"a", false},
		{"b", true},
	}
	for _, tt := range tests {
		added, err := s.Join("c1", tt.group)
		if err != nil {
			t.Fatalf("Join(c1, %s) error = %v", tt.group, err)
		}
		if added != tt.want {
			t.Errorf("Join(c1, %s) added = %v, want %v", tt.group, added, tt.want)
		}
	}
}

func TestSink_Part(t *testing.T) {
	s := New()
	c1 := &fakeSession{id: "c1"}
	c2 := &fakeSession{id: "c2"}
	s.Attach(c1)
	s.Attach(c2)
	s.Join("c1", "a")
	s.Join("c1", "b")
	s.Join("c2", "a")

	tests := []struct {
		name    string
		session string
		group   string
		want    bool
	}{
		{"member", "c1", "a", true},
		{"already parted", "c1", "a", false},
		{"never joined", "c2", "b", false},
		{"unknown session", "ghost", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Part(tt.session, tt.group); got != tt.want {
				t.Errorf("Part(%s, %s) = %v, want %v", tt.session, tt.group, got, tt.want)
			}
		})
	}

	if got := s.LocalCount("a"); got != 1 {
		t.Errorf("LocalCount(a) = %d, want 1", got)
	}
	s.Deliver("a", []byte("hi"))
	if got := c1.messages(); len(got) != 0 {
		t.Errorf("parted session received %v", got)
	}
	if got := s.Detach("c1"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Detach(c1) = %v, want [b]", got)
	}
}
