// Package sse 实现 Server-Sent Events 帧的增量解码。
// 服务端发送用 gin 的 SSEvent，客户端（含测试与 CLI 工具）用这里的
// Decoder 把任意切分的字节流还原成完整事件。
package sse

import (
	"bytes"
	"strings"
)

// Event 一个完整的 SSE 事件帧。
type Event struct {
	Name string
	Data string
}

// Decoder 增量解码器。Feed 可以以任意边界投喂字节（包括把一行
// 切成两半），每凑齐一个事件就回调一次 handler。
type Decoder struct {
	handler func(Event)

	buf       []byte
	eventName string
	dataLines []string
}

func NewDecoder(handler func(Event)) *Decoder {
	return &Decoder{handler: handler}
}

// Feed 追加一段字节并处理其中所有完整行。
// 规则：data: 行累积；空行把累积的数据作为一个事件冲出；
// 累积中途出现新的 event: 行时，先冲出上一个事件。
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		d.processLine(strings.TrimSuffix(line, "\r"))
	}
}

// Flush 把残留在缓冲里的未终结事件冲出。流被对端关闭而最后
// 一个事件缺少结尾空行时使用。
func (d *Decoder) Flush() {
	if len(d.buf) > 0 {
		line := strings.TrimSuffix(string(d.buf), "\r")
		d.buf = nil
		d.processLine(line)
	}
	d.emit()
}

func (d *Decoder) processLine(line string) {
	switch {
	case line == "":
		d.emit()
	case strings.HasPrefix(line, "event:"):
		// 新事件名出现在累积中途，说明上一个事件缺少空行终结
		if len(d.dataLines) > 0 {
			d.emit()
		}
		d.eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		value := strings.TrimPrefix(line, "data:")
		value = strings.TrimPrefix(value, " ")
		d.dataLines = append(d.dataLines, value)
	default:
		// 注释行与未知字段忽略
	}
}

func (d *Decoder) emit() {
	if len(d.dataLines) == 0 {
		d.eventName = ""
		return
	}
	ev := Event{
		Name: d.eventName,
		Data: strings.Join(d.dataLines, "\n"),
	}
	d.eventName = ""
	d.dataLines = nil
	d.handler(ev)
}
