// Package retrieval 提供文档切分、向量索引与混合检索的应用层逻辑。
package retrieval

import "strings"

const (
	defaultChunkSize    = 2000
	defaultChunkOverlap = 400
	defaultMinChunkLen  = 20
)

// ChunkText 以固定窗口 + 重叠切分文本，偏移按 rune 计算。
// 每个窗口去除首尾空白后长度需大于 minLen 才会输出；相邻窗口
// 起点单调递增，重叠部分保证跨窗口语义连续。
func ChunkText(text string, size, overlap, minLen int) []ChunkWindow {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	if minLen < 0 {
		minLen = defaultMinChunkLen
	}

	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}

	var chunks []ChunkWindow
	index := 0
	for start := 0; start < total; {
		end := start + size
		if end > total {
			end = total
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(window)) > minLen {
			chunks = append(chunks, ChunkWindow{
				Index: index,
				Start: start,
				End:   end,
				Text:  window,
			})
			index++
		}
		if end >= total {
			break
		}
		start = end - overlap
	}
	return chunks
}

// EstimateTokens 用字符数近似 token 数（四字符一 token，向上取整）。
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
