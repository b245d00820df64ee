package entity

// Credentials 访客凭据，由外部协作方提供，按不透明输入处理
type Credentials struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	AuthToken     string `json:"-"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Visitor 访客身份：已登录会员或匿名访客
// VisitorID 对匿名访客用于配额记账，对会员等于 UserID
type Visitor struct {
	VisitorID   string      `json:"visitor_id"`
	Credentials Credentials `json:"credentials"`
}
