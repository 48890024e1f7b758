package wasmhost

import (
	"encoding/binary"

	"github.com/wippyai/opcua-bridge/bridge"
	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/scalar"
)

// Scalars cross the guest boundary as raw bits. Reads store the value
// little-endian at the output pointer using its natural width (bool is
// one byte). Writes take an i64 whose low bytes hold the value; Float
// carries its IEEE bits in the low 32.

type codec struct {
	read          func(b *bridge.Bridge, eng, sess bridge.Handle, ref client.NodeRef) ([]byte, errors.Status)
	write         func(b *bridge.Bridge, eng, sess bridge.Handle, ref client.NodeRef, bits uint64) errors.Status
	readVariable  func(b *bridge.Bridge, nodes, node bridge.Handle) ([]byte, errors.Status)
	writeVariable func(b *bridge.Bridge, nodes, node bridge.Handle, bits uint64) errors.Status
}

func codecFor[T scalar.Value]() codec {
	return codec{
		read: func(b *bridge.Bridge, eng, sess bridge.Handle, ref client.NodeRef) ([]byte, errors.Status) {
			var v T
			return encode(bridge.Read(b, eng, sess, ref, &v), v)
		},
		write: func(b *bridge.Bridge, eng, sess bridge.Handle, ref client.NodeRef, bits uint64) errors.Status {
			v, err := decode[T](bits)
			if err != nil {
				return errors.StatusOf(err)
			}
			return bridge.Write(b, eng, sess, ref, v)
		},
		readVariable: func(b *bridge.Bridge, nodes, node bridge.Handle) ([]byte, errors.Status) {
			var v T
			return encode(bridge.ReadVariable(b, nodes, node, &v), v)
		},
		writeVariable: func(b *bridge.Bridge, nodes, node bridge.Handle, bits uint64) errors.Status {
			v, err := decode[T](bits)
			if err != nil {
				return errors.StatusOf(err)
			}
			return bridge.WriteVariable(b, nodes, node, v)
		},
	}
}

var codecs = map[scalar.Type]codec{
	scalar.Boolean: codecFor[bool](),
	scalar.SByte:   codecFor[int8](),
	scalar.Byte:    codecFor[uint8](),
	scalar.Int16:   codecFor[int16](),
	scalar.UInt16:  codecFor[uint16](),
	scalar.Int32:   codecFor[int32](),
	scalar.UInt32:  codecFor[uint32](),
	scalar.Int64:   codecFor[int64](),
	scalar.UInt64:  codecFor[uint64](),
	scalar.Float:   codecFor[float32](),
	scalar.Double:  codecFor[float64](),
}

func codecOf(code int32) (codec, errors.Status) {
	t, err := scalar.Parse(code)
	if err != nil {
		return codec{}, errors.StatusOf(err)
	}
	return codecs[t], errors.StatusOK
}

func encode[T scalar.Value](st errors.Status, v T) ([]byte, errors.Status) {
	if st != errors.StatusOK {
		return nil, st
	}
	out, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return nil, errors.StatusBufferFailed
	}
	return out, st
}

func decode[T scalar.Value](bits uint64) (T, error) {
	var v T
	buf := binary.LittleEndian.AppendUint64(nil, bits)
	if _, err := binary.Decode(buf, binary.LittleEndian, &v); err != nil {
		return v, err
	}
	return v, nil
}
