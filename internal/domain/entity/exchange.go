// Package entity 定义领域实体
package entity

import "time"

// Action 答案附带的可执行动作（由 UI 渲染，如跳转会员资料页）
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// AnswerSnapshot 流式答案的结构化快照
// 上游逐步构建同一个对象并整体下发，而非逐 token 推送
type AnswerSnapshot struct {
	Content           string   `json:"content"`
	FollowUpQuestions []string `json:"followUpQuestions,omitempty"`
	Sources           []string `json:"sources,omitempty"`
	Actions           []Action `json:"actions,omitempty"`
}

// Exchange 一轮问答
// Question 创建后不可变；Answer 在流式期间原地增长，只增不减
type Exchange struct {
	Question          string    `json:"question"`
	Answer            string    `json:"answer"`
	FollowUpQuestions []string  `json:"followUpQuestions,omitempty"`
	Sources           []string  `json:"sources,omitempty"`
	Actions           []Action  `json:"actions,omitempty"`
	Pending           bool      `json:"pending"`
	CreatedAt         time.Time `json:"createdAt"`
}

// NewExchange 创建一个待回答的问答轮次
func NewExchange(question string) *Exchange {
	return &Exchange{
		Question:  question,
		Pending:   true,
		CreatedAt: time.Now(),
	}
}
