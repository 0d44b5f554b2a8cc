// Package chat 实现问答会话的编排：检索、生成、缓存与落库。
package chat

import (
	"encoding/json"
	"fmt"

	"regdoc-ai-api/internal/application/retrieval"
)

// 流式事件名，与 SSE 帧里的 event: 字段一一对应。
const (
	EventNameMetadata = "metadata"
	EventNameText     = "text"
	EventNameDone     = "done"
	EventNameError    = "error"
)

// Event 是流式输出事件的封闭联合：Metadata、TextDelta、Done、ErrorEvent。
// 除这四种外不存在其它实现，消费方用类型 switch 分发。
type Event interface {
	EventName() string
}

// Metadata 在任何文本增量之前恰好发送一次，携带会话与引用来源。
// ExtraRefs 承载正文来源之外的补充引用链接，当前没有产出方，保留字段
// 以保持线格式稳定。
type Metadata struct {
	SessionID string             `json:"session_id"`
	Sources   []retrieval.Source `json:"sources"`
	ExtraRefs []string           `json:"extra_refs"`
	Cached    bool               `json:"cached"`
}

func (*Metadata) EventName() string { return EventNameMetadata }

// TextDelta 一段增量文本。
type TextDelta struct {
	Text string `json:"text"`
}

func (*TextDelta) EventName() string { return EventNameText }

// Done 终结事件，每条流恰好一个终结事件（Done 或 ErrorEvent）。
type Done struct {
	Result string `json:"result"` // completed / fallback
}

func (*Done) EventName() string { return EventNameDone }

// ErrorEvent 传输层错误终结事件。生成失败走道歉文案 + Done，
// 只有流还没建立成功的场景才会用到它。
type ErrorEvent struct {
	Message string `json:"message"`
}

func (*ErrorEvent) EventName() string { return EventNameError }

// DecodeEvent 把 SSE 帧还原为类型化事件，未知事件名返回错误。
func DecodeEvent(name, data string) (Event, error) {
	var ev Event
	switch name {
	case EventNameMetadata:
		ev = &Metadata{}
	case EventNameText:
		ev = &TextDelta{}
	case EventNameDone:
		ev = &Done{}
	case EventNameError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown stream event %q", name)
	}
	if err := json.Unmarshal([]byte(data), ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", name, err)
	}
	return ev, nil
}
