package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed 帧不是合法的结构化消息或缺少必填字段
var ErrMalformed = errors.New("protocol: malformed frame")

// Kind 入站命令种类
type Kind int

const (
	// KindUnknown 无法识别的类型
	KindUnknown Kind = iota
	// KindChat 聊天
	KindChat
	// KindRename 改名
	KindRename
)

// String 返回种类名称
func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// inboundKinds 入站类型别名表
var inboundKinds = map[string]Kind{
	"chat":       KindChat,
	"message":    KindChat,
	"rename":     KindRename,
	"changeName": KindRename,
	"init":       KindRename,
}

// KindOf 返回入站类型名对应的种类
func KindOf(typ string) Kind {
	return inboundKinds[typ]
}

// InboundTypes 返回全部可识别的入站类型名
func InboundTypes() []string {
	types := make([]string, 0, len(inboundKinds))
	for t := range inboundKinds {
		types = append(types, t)
	}
	return types
}

// Command 入站命令
type Command struct {
	// Type 原始类型名（保留别名，便于日志）
	Type string `json:"type"`
	// Text 聊天内容
	Text string `json:"message,omitempty"`
	// Timestamp 客户端时间戳，可为空
	Timestamp string `json:"timestamp,omitempty"`
	// Name 新的显示名
	Name string `json:"name,omitempty"`
}

// Kind 返回命令种类
func (c Command) Kind() Kind {
	return KindOf(c.Type)
}

// wireCommand 用于检测字段是否存在
type wireCommand struct {
	Type      *string         `json:"type"`
	Message   *string         `json:"message"`
	Text      *string         `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
	Name      *string         `json:"name"`
}

// DecodeCommand 解析入站帧
//
// 未知类型不是错误：返回 Kind() == KindUnknown 的命令，由调用方忽略。
func DecodeCommand(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == nil || *w.Type == "" {
		return Command{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	cmd := Command{Type: *w.Type, Timestamp: decodeTimestamp(w.Timestamp)}
	switch KindOf(cmd.Type) {
	case KindChat:
		switch {
		case w.Message != nil:
			cmd.Text = *w.Message
		case w.Text != nil:
			cmd.Text = *w.Text
		default:
			return Command{}, fmt.Errorf("%w: %s without message", ErrMalformed, cmd.Type)
		}
	case KindRename:
		if w.Name == nil {
			return Command{}, fmt.Errorf("%w: %s without name", ErrMalformed, cmd.Type)
		}
		cmd.Name = *w.Name
	}
	return cmd, nil
}

// decodeTimestamp 解析可选的客户端时间戳
//
// 字符串原样保留，数字按毫秒时间戳转为 RFC3339Nano，其余类型视为缺失。
func decodeTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// EncodeCommand 序列化入站命令（客户端侧）
func EncodeCommand(c Command) ([]byte, error) {
	return json.Marshal(c)
}

// ChatCommand 创建聊天命令
func ChatCommand(text string) Command {
	return Command{Type: "chat", Text: text}
}

// RenameCommand 创建改名命令
func RenameCommand(name string) Command {
	return Command{Type: "rename", Name: name}
}
