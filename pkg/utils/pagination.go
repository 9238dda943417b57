package utils

// Pagination 分页请求参数
type Pagination struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

// MaxPageSize 单页最大条数
const MaxPageSize = 100

// GetPageOffset 规范化分页参数并计算偏移量
// Limit 未设置时使用 defaultLimit
func (p *Pagination) GetPageOffset(defaultLimit int) (int, int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return (p.Page - 1) * p.Limit, p.Limit
}
