package traci

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var ErrCommandFailed = errors.New("traci command failed")

// maxMessageLength 单条响应的长度上限，超过时认为数据流已错位
const maxMessageLength = 64 << 20

// conn TraCI连接，一次只发送一条命令并同步等待响应
type conn struct {
	c net.Conn
}

// roundTrip 发送一条命令，读取并检查状态响应
// 返回：状态响应之后的内容
// 说明：消息格式为4字节总长度（含自身）+ 命令
func (c *conn) roundTrip(ctx context.Context, id byte, cmd []byte) (*reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.c.SetDeadline(deadline); err != nil {
		return nil, err
	}
	msg := make([]byte, 4, 4+len(cmd))
	binary.BigEndian.PutUint32(msg, uint32(4+len(cmd)))
	if _, err := c.c.Write(append(msg, cmd...)); err != nil {
		return nil, fmt.Errorf("send command 0x%02x: %w", id, err)
	}
	var header [4]byte
	if _, err := io.ReadFull(c.c, header[:]); err != nil {
		return nil, fmt.Errorf("receive response of 0x%02x: %w", id, err)
	}
	n := int(binary.BigEndian.Uint32(header[:])) - 4
	if n < 0 {
		return nil, fmt.Errorf("%w: message length %d", ErrShortMessage, n+4)
	}
	if n > maxMessageLength {
		return nil, fmt.Errorf("%w: message length %d exceeds %d", ErrUnexpected, n+4, maxMessageLength)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.c, body); err != nil {
		return nil, fmt.Errorf("receive response of 0x%02x: %w", id, err)
	}
	r := newReader(body)
	if err := r.status(id); err != nil {
		return nil, err
	}
	return r, nil
}

// status 状态响应：长度 + 命令ID + 结果 + 描述
func (r *reader) status(id byte) error {
	if _, err := r.length(); err != nil {
		return err
	}
	got, err := r.ubyte()
	if err != nil {
		return err
	}
	result, err := r.ubyte()
	if err != nil {
		return err
	}
	desc, err := r.string()
	if err != nil {
		return err
	}
	if got != id {
		return fmt.Errorf("%w: status of 0x%02x for command 0x%02x", ErrUnexpected, got, id)
	}
	switch result {
	case rtypeOK:
		return nil
	case rtypeNotImplemented:
		return fmt.Errorf("%w: command 0x%02x not implemented: %s", ErrCommandFailed, id, desc)
	default:
		return fmt.Errorf("%w: command 0x%02x: %s", ErrCommandFailed, id, desc)
	}
}

// get 查询变量，校验响应头后返回带类型的值
func (c *conn) get(ctx context.Context, domain, variable byte, objectID string) (any, error) {
	r, err := c.roundTrip(ctx, domain, getCommand(domain, variable, objectID))
	if err != nil {
		return nil, err
	}
	if _, err := r.length(); err != nil {
		return nil, err
	}
	resp, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	v, err := r.ubyte()
	if err != nil {
		return nil, err
	}
	obj, err := r.string()
	if err != nil {
		return nil, err
	}
	if resp != domain+responseOffset || v != variable || obj != objectID {
		return nil, fmt.Errorf("%w: response 0x%02x/0x%02x/%q for 0x%02x/0x%02x/%q",
			ErrUnexpected, resp, v, obj, domain, variable, objectID)
	}
	return r.value()
}

func (c *conn) set(ctx context.Context, domain, variable byte, objectID string, value func(*writer)) error {
	_, err := c.roundTrip(ctx, domain, setCommand(domain, variable, objectID, value))
	return err
}

func (c *conn) close() error {
	return c.c.Close()
}

// dial 按重试次数与间隔连接
func dial(ctx context.Context, addr string, retries int, interval time.Duration) (net.Conn, error) {
	var d net.Dialer
	var err error
	for i := range max(retries, 1) {
		var c net.Conn
		if c, err = d.DialContext(ctx, "tcp", addr); err == nil {
			return c, nil
		}
		log.Debugf("connect %s (attempt %d): %v", addr, i+1, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("connect %s after %d attempts: %w", addr, max(retries, 1), err)
}
