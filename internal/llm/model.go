package llm

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// 可用模型名称
const (
	// ModelGPT4o GPT-4o模型
	ModelGPT4o = "gpt-4o"
	// ModelGPT4oMini GPT-4o-mini模型
	ModelGPT4oMini = "gpt-4o-mini"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// ChatCompletionRequest OpenAI对话补全请求结构
type ChatCompletionRequest struct {
	Model          string          `json:"model"`                     // 模型名称
	Messages       []Message       `json:"messages"`                  // 消息列表
	MaxTokens      *int            `json:"max_tokens,omitempty"`      // 最大生成Token数
	Temperature    *float32        `json:"temperature,omitempty"`     // 采样温度
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"` // 返回格式
}

// ResponseFormat 返回格式约束
type ResponseFormat struct {
	Type string `json:"type"` // "text" 或 "json_object"
}

// ChatCompletionResponse OpenAI对话补全响应结构
type ChatCompletionResponse struct {
	ID      string    `json:"id"`              // 响应ID
	Model   string    `json:"model"`           // 模型名称
	Choices []Choice  `json:"choices"`         // 候选结果列表
	Usage   Usage     `json:"usage"`           // 资源使用情况
	Error   *APIError `json:"error,omitempty"` // 错误信息（如果有）
}

// Choice 候选结果
type Choice struct {
	Index        int     `json:"index"`         // 序号
	Message      Message `json:"message"`       // 生成的消息
	FinishReason string  `json:"finish_reason"` // 结束原因
}

// Usage Token使用统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 提示词Token数
	CompletionTokens int `json:"completion_tokens"` // 生成Token数
	TotalTokens      int `json:"total_tokens"`      // 总Token数
}

// APIError API错误响应体
type APIError struct {
	Message string `json:"message"` // 错误消息
	Type    string `json:"type"`    // 错误类型
	Code    string `json:"code"`    // 错误码
}
