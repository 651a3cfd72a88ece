package transport

import (
	"io"
	"sync"
)

// MemoryTransport 进程内的传输，测试和内置模拟vm使用
type MemoryTransport struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	peer *MemoryTransport
	once sync.Once
}

// Pipe 创建一对相连的传输，一端发送的消息从另一端收到
func Pipe() (*MemoryTransport, *MemoryTransport) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	a := &MemoryTransport{in: ba, out: ab, done: make(chan struct{})}
	b := &MemoryTransport{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (t *MemoryTransport) Send(content []byte) error {
	data := append([]byte(nil), content...)
	select {
	case <-t.done:
		return ErrClosed
	case <-t.peer.done:
		return ErrClosed
	default:
	}
	select {
	case t.out <- data:
		return nil
	case <-t.done:
		return ErrClosed
	case <-t.peer.done:
		return ErrClosed
	}
}

// Receive 对端关闭后，先读完已经在通道里的消息再返回io.EOF
func (t *MemoryTransport) Receive() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.done:
		return nil, io.EOF
	case <-t.peer.done:
		select {
		case data := <-t.in:
			return data, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close 关闭两端
func (t *MemoryTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
