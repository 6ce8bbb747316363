package model

import "mime/multipart"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultTopK     = 5
	MaxTopK         = 50
)

// PaginationRequest 分页参数，page从1开始
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,pagesize"`
}

func (p *PaginationRequest) GetPage() int {
	return max(p.Page, 1)
}

// GetPageSize 未设置时为DefaultPageSize，不超过MaxPageSize
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return min(p.PageSize, MaxPageSize)
}

func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// Response 按请求参数和总数构造分页响应
func (p *PaginationRequest) Response(total int64) PaginationResponse {
	return PaginationResponse{Total: total, Page: p.GetPage(), PageSize: p.GetPageSize()}
}

type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
}

type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"`
}

// DocumentListRequest 文档列表筛选，title为模糊匹配
type DocumentListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty,oneof=uploaded processing completed failed"`
	Title  string `form:"title" json:"title" binding:"omitempty,max=200"`
}

// Filters 转换为仓储层的过滤条件，userExternalID为空时不按用户过滤
func (r *DocumentListRequest) Filters(userExternalID string) map[string]interface{} {
	filters := make(map[string]interface{}, 3)
	for key, value := range map[string]string{
		"status":           r.Status,
		"title":            r.Title,
		"user_external_id": userExternalID,
	} {
		if value != "" {
			filters[key] = value
		}
	}
	return filters
}

type ChunkListRequest struct {
	PaginationRequest
}

// QueryRequest 相似分块查询
type QueryRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
	TopK  int    `json:"topK" binding:"omitempty,topk"`
}

// GetTopK 未设置时为DefaultTopK
func (r *QueryRequest) GetTopK() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}
	return r.TopK
}
