package traci

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrShortMessage = errors.New("traci message too short")
	ErrUnexpected   = errors.New("unexpected traci value")
)

// writer 大端序编码
type writer struct {
	buf bytes.Buffer
}

func (w *writer) ubyte(v byte) {
	w.buf.WriteByte(v)
}

func (w *writer) int(v int32) {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) double(v float64) {
	_ = binary.Write(&w.buf, binary.BigEndian, math.Float64bits(v))
}

func (w *writer) string(v string) {
	w.int(int32(len(v)))
	w.buf.WriteString(v)
}

func (w *writer) stringList(v []string) {
	w.int(int32(len(v)))
	for _, s := range v {
		w.string(s)
	}
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// 带类型标记的值

func (w *writer) typedInt(v int32) {
	w.ubyte(typeInteger)
	w.int(v)
}

func (w *writer) typedDouble(v float64) {
	w.ubyte(typeDouble)
	w.double(v)
}

func (w *writer) typedStringList(v []string) {
	w.ubyte(typeStringList)
	w.stringList(v)
}

// reader 大端序解码，越界时返回ErrShortMessage
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at %d, have %d", ErrShortMessage, n, r.pos, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) ubyte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) int() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *reader) double() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) string() (string, error) {
	n, err := r.int()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) stringList() ([]string, error) {
	n, err := r.int()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: string list of length %d", ErrUnexpected, n)
	}
	res := make([]string, n)
	for i := range res {
		if res[i], err = r.string(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// length 命令长度：1字节，为0时后跟4字节整数
// 返回：除长度字段外的命令内容长度
func (r *reader) length() (int, error) {
	n, err := r.ubyte()
	if err != nil {
		return 0, err
	}
	if n != 0 {
		return int(n) - 1, nil
	}
	l, err := r.int()
	if err != nil {
		return 0, err
	}
	return int(l) - 5, nil
}

// value 读取一个带类型标记的值
// 说明：复合类型解码为[]any，其余类型解码为对应的Go类型
func (r *reader) value() (any, error) {
	t, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	switch t {
	case typeUByte:
		return r.ubyte()
	case typeByte:
		b, err := r.ubyte()
		return int8(b), err
	case typeInteger:
		return r.int()
	case typeDouble:
		return r.double()
	case typeString:
		return r.string()
	case typeStringList:
		return r.stringList()
	case typeCompound:
		n, err := r.int()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: compound of length %d", ErrUnexpected, n)
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = r.value(); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: type 0x%02x", ErrUnexpected, t)
	}
}

// as 将value()的结果断言为具体类型
func as[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	res, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpected, v, zero)
	}
	return res, nil
}

// command 单条命令的编码
// 格式：长度（1字节，超过255时为0后跟4字节整数）+ 命令ID + 内容
func command(id byte, content []byte) []byte {
	var w writer
	if n := 2 + len(content); n <= math.MaxUint8 {
		w.ubyte(byte(n))
	} else {
		w.ubyte(0)
		w.int(int32(n + 4))
	}
	w.ubyte(id)
	w.buf.Write(content)
	return w.bytes()
}

// getCommand 变量查询命令
func getCommand(id, variable byte, objectID string) []byte {
	var w writer
	w.ubyte(variable)
	w.string(objectID)
	return command(id, w.bytes())
}

// setCommand 变量设置命令，value为带类型标记的值
func setCommand(id, variable byte, objectID string, value func(*writer)) []byte {
	var w writer
	w.ubyte(variable)
	w.string(objectID)
	value(&w)
	return command(id, w.bytes())
}
