package protocol

import (
	"encoding/json"
	"fmt"
)

// Type 出站事件类型
type Type string

const (
	// TypeWelcome 私有握手，仅发送给新连接
	TypeWelcome Type = "welcome"
	// TypeConnectionAck 握手确认，无负载
	TypeConnectionAck Type = "connection_ack"
	// TypeJoined 有用户加入
	TypeJoined Type = "userJoined"
	// TypeLeft 有用户离开
	TypeLeft Type = "userLeft"
	// TypeChat 聊天消息
	TypeChat Type = "chat"
	// TypeRenamed 用户改名
	TypeRenamed Type = "nameChanged"
)

// outboundAliases 旧版本客户端/服务端使用的出站类型名
var outboundAliases = map[string]Type{
	"join":    TypeJoined,
	"leave":   TypeLeft,
	"message": TypeChat,
	"rename":  TypeRenamed,
}

// Event 出站事件，携带渲染所需的全部字段
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"userId,omitempty"`
	Name      string `json:"userName,omitempty"`
	Online    *int   `json:"userCount,omitempty"`
	Text      string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	OldName   string `json:"oldName,omitempty"`
	NewName   string `json:"newName,omitempty"`
}

// OnlineCount 返回在线人数，事件不携带时返回 0
func (e Event) OnlineCount() int {
	if e.Online == nil {
		return 0
	}
	return *e.Online
}

// Welcome 创建私有欢迎事件
func Welcome(sessionID, name string, online int) Event {
	return Event{Type: TypeWelcome, SessionID: sessionID, Name: name, Online: &online}
}

// ConnectionAck 创建握手确认事件
func ConnectionAck() Event {
	return Event{Type: TypeConnectionAck}
}

// Joined 创建加入事件
func Joined(sessionID, name string, online int) Event {
	return Event{Type: TypeJoined, SessionID: sessionID, Name: name, Online: &online}
}

// Left 创建离开事件，name 为移除前的显示名，online 为移除后的人数
func Left(sessionID, name string, online int) Event {
	return Event{Type: TypeLeft, SessionID: sessionID, Name: name, Online: &online}
}

// Chat 创建聊天事件
func Chat(sessionID, name, text, timestamp string) Event {
	return Event{Type: TypeChat, SessionID: sessionID, Name: name, Text: text, Timestamp: timestamp}
}

// Renamed 创建改名事件
func Renamed(sessionID, oldName, newName string) Event {
	return Event{Type: TypeRenamed, SessionID: sessionID, OldName: oldName, NewName: newName}
}

// Encode 序列化事件
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent 解析出站事件（客户端侧），别名类型会被归一化
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if canonical, ok := outboundAliases[string(e.Type)]; ok {
		e.Type = canonical
	}
	return e, nil
}
