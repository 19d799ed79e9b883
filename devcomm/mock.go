package devcomm

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumilab/go-labdev/internal/queue"
)

// MockExchange is one scripted request/response pair for a MockBackend.
type MockExchange struct {
	// Expect is the exact wire payload the device expects, including the write
	// terminator the backend appends.
	Expect []byte
	// Respond is queued into the read buffer when Expect arrives. A response
	// terminator is not appended automatically.
	Respond []byte
}

// MockBackend is an in-memory Backend with a scripted exchange table, used to test
// protocol layers and device drivers without real hardware.
//
// Writes are captured and compared against the head of the exchange script; on a
// match the scripted response is queued for subsequent reads. Raw bytes can also be
// queued directly with QueueRead for unsolicited or streamed traffic.
type MockBackend struct {
	mu sync.Mutex

	opened   bool
	timeout  time.Duration
	info     ConnInfo
	termRead [][]byte
	// termWrite is appended by Write, mirroring real backends; the captured
	// writes retain it so tests can assert the exact wire bytes.
	termWrite []byte

	readBuf  bytes.Buffer
	writes   [][]byte
	script   queue.Queue[MockExchange]
	writeErr error
	readErr  error
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates an opened MockBackend with LF read terminator and no write
// terminator.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		opened:   true,
		timeout:  time.Second,
		info:     ConnInfo{Kind: Kind("mock"), Addr: "mock"},
		termRead: [][]byte{{'\n'}},
		script:   queue.NewSliceQueue[MockExchange](4),
	}
}

// SetTerminators configures the read terminator set and write terminator.
func (m *MockBackend) SetTerminators(termRead [][]byte, termWrite []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termRead = termRead
	m.termWrite = termWrite
}

// Expect appends a scripted exchange. expect is matched against written payloads
// including the write terminator.
func (m *MockBackend) Expect(expect, respond []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script.Enqueue(MockExchange{Expect: expect, Respond: respond})
}

// ExpectString is Expect for string literals.
func (m *MockBackend) ExpectString(expect, respond string) {
	m.Expect([]byte(expect), []byte(respond))
}

// QueueRead appends raw bytes to the read buffer.
func (m *MockBackend) QueueRead(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuf.Write(data)
}

// FailReads makes subsequent read operations return err (nil restores normal reads).
func (m *MockBackend) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes subsequent write operations return err (nil restores normal writes).
func (m *MockBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns all captured write payloads, including write terminators.
func (m *MockBackend) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// ScriptExhausted reports whether every scripted exchange has been consumed.
func (m *MockBackend) ScriptExhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.script.IsEmpty()
}

// --- Backend interface ---

func (m *MockBackend) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return ErrAlreadyOpened
	}
	m.opened = true
	return nil
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

func (m *MockBackend) Opened() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

func (m *MockBackend) Read(ctx context.Context, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return nil, ErrBackendClosed
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.readBuf.Len() < n {
		return nil, fmt.Errorf("%w: %d instead of %d", ErrShortRead, m.readBuf.Len(), n)
	}
	out := make([]byte, n)
	_, _ = m.readBuf.Read(out)
	return out, nil
}

func (m *MockBackend) ReadAvailable() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return nil, ErrBackendClosed
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]byte, m.readBuf.Len())
	_, _ = m.readBuf.Read(out)
	return out, nil
}

func (m *MockBackend) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		line, err := m.ReadUntil(ctx, m.termRead)
		if err != nil {
			return nil, err
		}
		line = TrimTerm(line, m.termRead)
		if len(line) > 0 {
			return line, nil
		}
	}
}

func (m *MockBackend) ReadUntil(ctx context.Context, terms [][]byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return nil, ErrBackendClosed
	}
	if m.readErr != nil {
		return nil, m.readErr
	}

	var out []byte
	for {
		b, err := m.readBuf.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: no terminator in mock read buffer", ErrTimeout)
		}
		out = append(out, b)
		if HasTerm(out, terms) {
			return out, nil
		}
	}
}

func (m *MockBackend) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return ErrBackendClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	payload := AppendTerm(data, m.termWrite)
	m.writes = append(m.writes, payload)

	if head, ok := m.script.Peek(); ok && bytes.Equal(head.Expect, payload) {
		m.readBuf.Write(head.Respond)
		m.script.Dequeue()
	}

	return nil
}

func (m *MockBackend) Ask(ctx context.Context, query []byte) ([]byte, error) {
	if err := m.Write(ctx, query); err != nil {
		return nil, err
	}
	return m.ReadLine(ctx)
}

func (m *MockBackend) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

func (m *MockBackend) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) ConnInfo() ConnInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}
