package sse

import (
	"bytes"
	"encoding/json"
	"testing"

	ginsse "github.com/gin-contrib/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, chunks ...string) []Event {
	t.Helper()
	var events []Event
	d := NewDecoder(func(ev Event) {
		events = append(events, ev)
	})
	for _, c := range chunks {
		d.Feed([]byte(c))
	}
	d.Flush()
	return events
}

func TestDecoder_SingleEvent(t *testing.T) {
	events := decodeAll(t, "event: text\ndata: {\"text\":\"hi\"}\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "text", Data: `{"text":"hi"}`}, events[0])
}

func TestDecoder_MultipleEvents(t *testing.T) {
	events := decodeAll(t,
		"event: metadata\ndata: {}\n\nevent: text\ndata: {\"text\":\"a\"}\n\nevent: done\ndata: {}\n\n")

	require.Len(t, events, 3)
	assert.Equal(t, "metadata", events[0].Name)
	assert.Equal(t, "text", events[1].Name)
	assert.Equal(t, "done", events[2].Name)
}

func TestDecoder_SplitMidLine(t *testing.T) {
	// 同一行跨多次 Feed 投喂
	events := decodeAll(t, "event: te", "xt\nda", "ta: {\"text\":\"hel", "lo\"}\n", "\n")

	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "text", Data: `{"text":"hello"}`}, events[0])
}

func TestDecoder_MultiLineData(t *testing.T) {
	events := decodeAll(t, "event: text\ndata: first\ndata: second\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, "first\nsecond", events[0].Data)
}

func TestDecoder_EventLineFlushesPriorAccumulation(t *testing.T) {
	// 上一个事件缺少空行终结，新 event: 行先把它冲出
	events := decodeAll(t, "event: text\ndata: a\nevent: done\ndata: {}\n\n")

	require.Len(t, events, 2)
	assert.Equal(t, Event{Name: "text", Data: "a"}, events[0])
	assert.Equal(t, Event{Name: "done", Data: "{}"}, events[1])
}

func TestDecoder_EmptyInput(t *testing.T) {
	assert.Empty(t, decodeAll(t))
	assert.Empty(t, decodeAll(t, ""))
	assert.Empty(t, decodeAll(t, "\n\n\n"))
}

func TestDecoder_IgnoresCommentsAndUnknownFields(t *testing.T) {
	events := decodeAll(t, ": keepalive\nid: 42\nevent: text\ndata: x\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "text", Data: "x"}, events[0])
}

func TestDecoder_CarriageReturns(t *testing.T) {
	events := decodeAll(t, "event: text\r\ndata: x\r\n\r\n")

	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "text", Data: "x"}, events[0])
}

func TestDecoder_FlushWithoutTrailingBlankLine(t *testing.T) {
	events := decodeAll(t, "event: done\ndata: {}")

	require.Len(t, events, 1)
	assert.Equal(t, Event{Name: "done", Data: "{}"}, events[0])
}

// 服务端用 gin 的 sse 编码器发帧，这里验证两端咬合：编码 N 个事件、
// 按碎片投喂解码后得到 N 次回调，载荷逐个等于原始值。
func TestDecoder_RoundTripThroughServerFraming(t *testing.T) {
	frames := []ginsse.Event{
		{Event: "metadata", Data: map[string]any{"session_id": "s1", "cached": false}},
		{Event: "text", Data: map[string]any{"text": "排放限值如下"}},
		{Event: "text", Data: map[string]any{"text": "second delta"}},
		{Event: "done", Data: map[string]any{"result": "completed"}},
	}

	var wire bytes.Buffer
	for _, f := range frames {
		require.NoError(t, ginsse.Encode(&wire, f))
	}

	var got []Event
	d := NewDecoder(func(ev Event) { got = append(got, ev) })
	// 7 字节一片投喂，保证行在片中间被切断
	raw := wire.Bytes()
	for len(raw) > 0 {
		n := 7
		if n > len(raw) {
			n = len(raw)
		}
		d.Feed(raw[:n])
		raw = raw[n:]
	}
	d.Flush()

	require.Len(t, got, len(frames))
	for i, f := range frames {
		assert.Equal(t, f.Event, got[i].Name)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(got[i].Data), &decoded))
		wantJSON, err := json.Marshal(f.Data)
		require.NoError(t, err)
		var want map[string]any
		require.NoError(t, json.Unmarshal(wantJSON, &want))
		assert.Equal(t, want, decoded)
	}
}
