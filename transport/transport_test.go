package transport

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type bufferRWC struct {
	*bytes.Buffer
}

func (b bufferRWC) Close() error { return nil }

func TestStreamTransport_SkipHandshake(t *testing.T) {
	buf := bufferRWC{Buffer: &bytes.Buffer{}}
	buf.WriteString("Type: connect\r\nV8-Version: 3.30.0\r\nProtocol-Version: 1\r\nEmbedding-Host: node\r\nContent-Length: 0\r\n\r\n")
	buf.WriteString("Content-Length: 13\r\n\r\n{\"seq\":1,\"a\"}")
	buf.WriteString("Content-Length: 2\r\n\r\n{}")

	tr := NewStreamTransport(buf)
	content, err := tr.Receive()
	assert.Nil(t, err)
	assert.Equal(t, `{"seq":1,"a"}`, string(content))
	assert.Equal(t, "3.30.0", tr.Handshake()["V8-Version"])

	content, err = tr.Receive()
	assert.Nil(t, err)
	assert.Equal(t, "{}", string(content))

	_, err = tr.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamTransport_InvalidHeader(t *testing.T) {
	buf := bufferRWC{Buffer: bytes.NewBufferString("Content-Length: abc\r\n\r\n")}
	_, err := NewStreamTransport(buf).Receive()
	assert.NotNil(t, err)

	buf = bufferRWC{Buffer: bytes.NewBufferString("Content-Length: 99999999999\r\n\r\n")}
	_, err = NewStreamTransport(buf).Receive()
	assert.NotNil(t, err)

	buf = bufferRWC{Buffer: bytes.NewBufferString("Content-Length: 10\r\n\r\n{}")}
	_, err = NewStreamTransport(buf).Receive()
	assert.NotNil(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestStreamTransport_OverConn(t *testing.T) {
	client, server := net.Pipe()
	ct := NewStreamTransport(client)
	st := NewStreamTransport(server)
	defer ct.Close()
	defer st.Close()

	go func() {
		_ = st.SendHandshake(map[string]string{"Type": "connect", "V8-Version": "3.30.0"})
		_ = st.Send([]byte(`{"type":"event"}`))
	}()
	content, err := ct.Receive()
	assert.Nil(t, err)
	assert.Equal(t, `{"type":"event"}`, string(content))
	assert.Equal(t, "connect", ct.Handshake()["Type"])
}

func TestMemoryTransport(t *testing.T) {
	a, b := Pipe()
	assert.Nil(t, a.Send([]byte("hello")))
	data, err := b.Receive()
	assert.Nil(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Nil(t, b.Send([]byte("last")))
	assert.Nil(t, b.Close())
	data, err = a.Receive()
	assert.Nil(t, err)
	assert.Equal(t, "last", string(data))

	done := make(chan error, 1)
	go func() {
		_, err := a.Receive()
		done <- err
	}()
	select {
	case err = <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("receive should return after peer closed")
	}
	assert.ErrorIs(t, a.Send([]byte("x")), ErrClosed)
}
