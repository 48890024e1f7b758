package wasmhost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/errors"
)

func newGuest(t *testing.T) *Guest {
	t.Helper()
	return NewGuest(context.Background(), guestModule(t))
}

func TestGuest_String(t *testing.T) {
	g := newGuest(t)
	require.NoError(t, g.Put(100, []byte("ns=1;s=Temp")))

	s, err := g.String("test", 100, 11)
	require.NoError(t, err)
	assert.Equal(t, "ns=1;s=Temp", s)

	s, err = g.String("test", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, g.Put(200, []byte{0xff, 0xfe}))
	_, err = g.String("test", 200, 2)
	assert.Equal(t, errors.StatusStringConversion, errors.StatusOf(err))

	_, err = g.String("test", 65530, 100)
	assert.ErrorIs(t, err, ErrGuestMemory)
}

func TestGuest_NoExports(t *testing.T) {
	g := &Guest{}
	_, err := g.String("test", 1, 1)
	assert.ErrorIs(t, err, ErrNoMemory)

	err = opcuabridge.WriteString(NewBuffer(g, 16), "x")
	assert.Equal(t, errors.StatusBufferFailed, errors.StatusOf(err))
}

func TestBuffer_WriteString(t *testing.T) {
	g := newGuest(t)
	buf := NewBuffer(g, 16)

	require.NoError(t, opcuabridge.WriteString(buf, "Node: ns=1;s=Temp\n"))

	ptr, err := g.Mem.ReadU32(16)
	require.NoError(t, err)
	n, err := g.Mem.ReadU32(20)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), ptr)
	assert.Equal(t, uint32(18), n)

	data, err := buf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "Node: ns=1;s=Temp\n", string(data))

	require.NoError(t, opcuabridge.WriteString(buf, ""))
	data, err = buf.Bytes()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBuffer_CopyBeforeResize(t *testing.T) {
	buf := NewBuffer(newGuest(t), 16)
	assert.Error(t, buf.Copy([]byte("too long")))
}

func TestRecords_WriteRecords(t *testing.T) {
	g := newGuest(t)
	arr := NewRecords(g, 32)

	recs := []opcuabridge.Record{
		{Class: 2, DisplayName: "Temp", NodeID: "ns=1;s=Temp"},
		{Class: 1, DisplayName: "Empty", NodeID: "ns=1;s=Empty"},
	}
	require.NoError(t, opcuabridge.WriteRecords(arr, recs))

	n, err := g.Mem.ReadU32(36)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	for i, want := range recs {
		got, err := arr.Record(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = arr.Record(2)
	assert.Error(t, err)
	assert.Error(t, arr.Set(5, recs[0]))
}

func TestRecords_Empty(t *testing.T) {
	g := newGuest(t)
	arr := NewRecords(g, 32)

	require.NoError(t, opcuabridge.WriteRecords(arr, nil))
	n, err := g.Mem.ReadU32(36)
	require.NoError(t, err)
	assert.Zero(t, n)
}
