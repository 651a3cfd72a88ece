package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxContentLength 单条消息的最大长度（10MB）
const MaxContentLength = 10 * 1024 * 1024

// ErrClosed 传输层已经关闭
var ErrClosed = errors.New("transport is closed")

// Transport 和vm之间的消息通道，一条消息是一段完整的json
// Receive返回io.EOF表示连接正常结束
type Transport interface {
	Send(content []byte) error
	Receive() ([]byte, error)
	Close() error
}

// StreamTransport 基于Content-Length分帧的流式传输
// V8在连接建立时会先发送一条只有header的握手消息，读到后记录下来并跳过
type StreamTransport struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex

	headerLock sync.RWMutex
	handshake  map[string]string
}

func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
	}
}

// Dial 连接vm的调试端口
func Dial(ctx context.Context, address string, timeout time.Duration) (*StreamTransport, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStreamTransport(conn), nil
}

func (t *StreamTransport) Send(content []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return writeMessage(t.rwc, nil, content)
}

// SendHandshake vm端使用，发送只有header的握手消息
func (t *StreamTransport) SendHandshake(headers map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return writeMessage(t.rwc, headers, nil)
}

func (t *StreamTransport) Receive() ([]byte, error) {
	for {
		headers, content, err := readMessage(t.reader)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			t.headerLock.Lock()
			t.handshake = headers
			t.headerLock.Unlock()
			continue
		}
		return content, nil
	}
}

// Handshake 握手消息中的header，比如V8-Version
func (t *StreamTransport) Handshake() map[string]string {
	t.headerLock.RLock()
	defer t.headerLock.RUnlock()
	answer := make(map[string]string, len(t.handshake))
	for k, v := range t.handshake {
		answer[k] = v
	}
	return answer
}

func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}

func writeMessage(w io.Writer, headers map[string]string, content []byte) error {
	var sb strings.Builder
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("%s: %s\r\n", k, headers[k]))
	}
	sb.WriteString(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(content)))
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	if len(content) == 0 {
		return nil
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func readMessage(r *bufio.Reader) (map[string]string, []byte, error) {
	headers := map[string]string{}
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" && len(headers) == 0 {
				return nil, nil, io.EOF
			}
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(headers) == 0 {
				// 忽略消息之间多余的空行
				continue
			}
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("invalid header: %s", line)
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		headers[key] = value
		if strings.EqualFold(key, "Content-Length") {
			length, err := strconv.Atoi(value)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid content-length: %w", err)
			}
			if length < 0 || length > MaxContentLength {
				return nil, nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", length, MaxContentLength)
			}
			contentLength = length
		}
	}
	if contentLength < 0 {
		return nil, nil, fmt.Errorf("missing Content-Length header")
	}
	content := make([]byte, contentLength)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, nil, fmt.Errorf("read content: %w", err)
	}
	return headers, content, nil
}
