package models

import (
	"time"
)

// BaseModel 基础时间戳字段
type BaseModel struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
