package chat

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"regdoc-ai-api/internal/domain/entity"
)

const systemPrompt = `你是一名法规与技术文档问答助手。请严格依据提供的参考资料回答问题：
1. 回答必须以参考资料为依据，不得编造资料中不存在的条款或数据
2. 引用具体条款时注明出处文档
3. 参考资料不足以回答时，明确说明资料中没有相关内容，不要猜测
4. 使用与提问相同的语言回答`

const noContextNote = "（本次检索未找到相关参考资料，请告知用户资料不足，并仅依据通识给出有限提示。）"

// BuildMessages 组装一次生成的完整消息序列：
// system 提示 → 历史轮次 → 携带参考资料的当前提问。
func BuildMessages(history []*entity.ChatTurn, contextBlob, question string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))

	for _, turn := range history {
		switch turn.Role {
		case entity.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case entity.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}

	var b strings.Builder
	if strings.TrimSpace(contextBlob) != "" {
		b.WriteString("## 参考资料\n\n")
		b.WriteString(contextBlob)
		b.WriteString("\n\n")
	} else {
		b.WriteString(noContextNote)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "## 问题\n\n%s", question)

	messages = append(messages, schema.UserMessage(b.String()))
	return messages
}
