package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// 生成内容缓存的 kind 取值。
const kindChatAnswer = "chat_answer"

const maxSubTopicRunes = 512

// scope_key 列是 varchar(128)，超长的集合组合降级为摘要。
const maxScopeKeyLen = 128

// CacheScopeKey 由集合过滤条件导出缓存作用域：同样的集合组合
// 共享一个作用域，无过滤时归入 "all"。
func CacheScopeKey(collectionIDs []string) string {
	if len(collectionIDs) == 0 {
		return "all"
	}
	ids := make([]string, len(collectionIDs))
	copy(ids, collectionIDs)
	sort.Strings(ids)
	key := strings.Join(ids, ",")
	if len(key) > maxScopeKeyLen {
		sum := sha256.Sum256([]byte(key))
		return "sha256:" + hex.EncodeToString(sum[:])
	}
	return key
}

// NormalizeSubTopic 把提问归一化为缓存子主题：小写、压缩空白、截断。
// 仅做保守归一，措辞不同的等价问题仍视为不同条目。
func NormalizeSubTopic(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	runes := []rune(normalized)
	if len(runes) > maxSubTopicRunes {
		return string(runes[:maxSubTopicRunes])
	}
	return normalized
}
