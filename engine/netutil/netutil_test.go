package netutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestWriteAllReadAll(t *testing.T) {
	buf := &bytes.Buffer{}
	data := []byte("hello holoworld")
	err := WriteAll(buf, data)
	assert.Equal(t, nil, err)

	recv := make([]byte, len(data))
	err = ReadAll(buf, recv)
	assert.Equal(t, nil, err)
	assert.Equal(t, data, recv)
}

func TestIsConnectionError(t *testing.T) {
	assert.Equal(t, true, IsConnectionError(io.EOF))
	assert.Equal(t, true, IsConnectionError(errors.Wrap(io.EOF, "recv")))
	assert.Equal(t, false, IsConnectionError("not an error"))
	assert.Equal(t, false, IsConnectionError(errors.New("other error")))
}

func TestMessagePackMsgPacker(t *testing.T) {
	packer := MessagePackMsgPacker{}
	msg := map[string]interface{}{"name": "Alice", "ready": true}
	buf, err := packer.PackMsg(msg, nil)
	assert.Equal(t, nil, err)

	var restored map[string]interface{}
	err = packer.UnpackMsg(buf, &restored)
	assert.Equal(t, nil, err)
	assert.Equal(t, "Alice", restored["name"])
	assert.Equal(t, true, restored["ready"])
}
