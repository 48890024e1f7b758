package bridge

import (
	"context"
	"fmt"

	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/scalar"
)

// Read reads the value of a node into out. The stored value must have
// exactly type T, otherwise the call fails with TypeMismatch.
func Read[T scalar.Value](b *Bridge, eng, sess Handle, ref client.NodeRef, out *T) Status {
	return b.call("read", func() error {
		if out == nil {
			return ErrNilOutput
		}
		e, s, done, err := b.session("read", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		v, err := engine.Do(e, "read", func(ctx context.Context) (T, error) {
			return client.Read[T](ctx, s, ref)
		})
		if err != nil {
			return err
		}
		*out = v
		return nil
	})
}

// Write writes v to a node through a client session.
func Write[T scalar.Value](b *Bridge, eng, sess Handle, ref client.NodeRef, v T) Status {
	return b.call("write", func() error {
		e, s, done, err := b.session("write", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		return engine.Run(e, "write", func(ctx context.Context) error {
			return client.Write(ctx, s, ref, v)
		})
	})
}

// WriteVariable stores v in a server variable. v must have the variable's
// declared type.
func WriteVariable[T scalar.Value](b *Bridge, nodes, node Handle, v T) Status {
	return b.call("write_variable", func() error {
		m, id, done, err := b.variable("write_variable", nodes, node)
		if err != nil {
			return err
		}
		defer done()

		_, err = onRuntime(m, "write_variable", func() (struct{}, error) {
			return struct{}{}, m.WriteValue(id, v)
		})
		if err != nil {
			return err
		}
		b.metrics.RecordWrite(scalar.TypeOf[T]().String())
		return nil
	})
}

// ReadVariable loads the current value of a server variable into out.
func ReadVariable[T scalar.Value](b *Bridge, nodes, node Handle, out *T) Status {
	return b.call("read_variable", func() error {
		if out == nil {
			return ErrNilOutput
		}
		m, id, done, err := b.variable("read_variable", nodes, node)
		if err != nil {
			return err
		}
		defer done()

		v, _, err := m.ReadValue(id)
		if err != nil {
			return err
		}
		got, err := scalar.As[T](v)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		*out = got
		return nil
	})
}

// ReadBoolean reads a Boolean node through a client session.
func (b *Bridge) ReadBoolean(eng, sess Handle, ref client.NodeRef, out *bool) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadSByte reads a SByte node through a client session.
func (b *Bridge) ReadSByte(eng, sess Handle, ref client.NodeRef, out *int8) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadByteValue reads a Byte node. The name avoids io.ByteReader.
func (b *Bridge) ReadByteValue(eng, sess Handle, ref client.NodeRef, out *uint8) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadInt16 reads an Int16 node through a client session.
func (b *Bridge) ReadInt16(eng, sess Handle, ref client.NodeRef, out *int16) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadUInt16 reads a UInt16 node through a client session.
func (b *Bridge) ReadUInt16(eng, sess Handle, ref client.NodeRef, out *uint16) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadInt32 reads an Int32 node through a client session.
func (b *Bridge) ReadInt32(eng, sess Handle, ref client.NodeRef, out *int32) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadUInt32 reads a UInt32 node through a client session.
func (b *Bridge) ReadUInt32(eng, sess Handle, ref client.NodeRef, out *uint32) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadInt64 reads an Int64 node through a client session.
func (b *Bridge) ReadInt64(eng, sess Handle, ref client.NodeRef, out *int64) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadUInt64 reads a UInt64 node through a client session.
func (b *Bridge) ReadUInt64(eng, sess Handle, ref client.NodeRef, out *uint64) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadFloat reads a Float node through a client session.
func (b *Bridge) ReadFloat(eng, sess Handle, ref client.NodeRef, out *float32) Status {
	return Read(b, eng, sess, ref, out)
}

// ReadDouble reads a Double node through a client session.
func (b *Bridge) ReadDouble(eng, sess Handle, ref client.NodeRef, out *float64) Status {
	return Read(b, eng, sess, ref, out)
}

// WriteBoolean writes a Boolean node through a client session.
func (b *Bridge) WriteBoolean(eng, sess Handle, ref client.NodeRef, v bool) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteSByte writes a SByte node through a client session.
func (b *Bridge) WriteSByte(eng, sess Handle, ref client.NodeRef, v int8) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteByteValue writes a Byte node. The name avoids io.ByteWriter.
func (b *Bridge) WriteByteValue(eng, sess Handle, ref client.NodeRef, v uint8) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteInt16 writes an Int16 node through a client session.
func (b *Bridge) WriteInt16(eng, sess Handle, ref client.NodeRef, v int16) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteUInt16 writes a UInt16 node through a client session.
func (b *Bridge) WriteUInt16(eng, sess Handle, ref client.NodeRef, v uint16) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteInt32 writes an Int32 node through a client session.
func (b *Bridge) WriteInt32(eng, sess Handle, ref client.NodeRef, v int32) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteUInt32 writes a UInt32 node through a client session.
func (b *Bridge) WriteUInt32(eng, sess Handle, ref client.NodeRef, v uint32) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteInt64 writes an Int64 node through a client session.
func (b *Bridge) WriteInt64(eng, sess Handle, ref client.NodeRef, v int64) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteUInt64 writes a UInt64 node through a client session.
func (b *Bridge) WriteUInt64(eng, sess Handle, ref client.NodeRef, v uint64) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteFloat writes a Float node through a client session.
func (b *Bridge) WriteFloat(eng, sess Handle, ref client.NodeRef, v float32) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteDouble writes a Double node through a client session.
func (b *Bridge) WriteDouble(eng, sess Handle, ref client.NodeRef, v float64) Status {
	return Write(b, eng, sess, ref, v)
}

// WriteVariableBoolean stores a Boolean in a server variable.
func (b *Bridge) WriteVariableBoolean(nodes, node Handle, v bool) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableSByte stores a SByte in a server variable.
func (b *Bridge) WriteVariableSByte(nodes, node Handle, v int8) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableByte stores a Byte in a server variable.
func (b *Bridge) WriteVariableByte(nodes, node Handle, v uint8) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableInt16 stores an Int16 in a server variable.
func (b *Bridge) WriteVariableInt16(nodes, node Handle, v int16) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableUInt16 stores a UInt16 in a server variable.
func (b *Bridge) WriteVariableUInt16(nodes, node Handle, v uint16) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableInt32 stores an Int32 in a server variable.
func (b *Bridge) WriteVariableInt32(nodes, node Handle, v int32) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableUInt32 stores a UInt32 in a server variable.
func (b *Bridge) WriteVariableUInt32(nodes, node Handle, v uint32) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableInt64 stores an Int64 in a server variable.
func (b *Bridge) WriteVariableInt64(nodes, node Handle, v int64) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableUInt64 stores a UInt64 in a server variable.
func (b *Bridge) WriteVariableUInt64(nodes, node Handle, v uint64) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableFloat stores a Float in a server variable.
func (b *Bridge) WriteVariableFloat(nodes, node Handle, v float32) Status {
	return WriteVariable(b, nodes, node, v)
}

// WriteVariableDouble stores a Double in a server variable.
func (b *Bridge) WriteVariableDouble(nodes, node Handle, v float64) Status {
	return WriteVariable(b, nodes, node, v)
}
