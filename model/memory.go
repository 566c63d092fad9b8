package model

import "time"

type MemoryType string

const (
	MemoryTypeNote     MemoryType = "NOTE"
	MemoryTypeReminder MemoryType = "REMINDER"
	MemoryTypePic      MemoryType = "PIC"
)

type Memory struct {
	Id         string     `json:"id"`
	BizId      string     `json:"biz_id"`
	MemoryType MemoryType `json:"memory_type"`
	Data       *Note      `json:"data"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MemorySyncLog is one watermark row. Rows are only ever appended; the most
// recent BizModifiedAt per BizId is the effective watermark.
type MemorySyncLog struct {
	Id            string    `json:"id"`
	BizId         string    `json:"biz_id"`
	BizModifiedAt time.Time `json:"biz_modified_at"`
	CreatedAt     time.Time `json:"created_at"`
}
