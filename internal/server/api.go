package server

import (
	"time"

	"github.com/mohans/taskx/codec"
)

type SubmitItemBody struct {
	Callable string        `json:"callable"`
	Args     []codec.Value `json:"args"`
}

type SubmitItemRequest struct {
	Queue string          `in:"path=queue"`
	Body  *SubmitItemBody `in:"body=json"`
}

type SubmitItemResponse struct {
	ID string `json:"id"`
}

type GetQueueRequest struct {
	Queue string `in:"path=queue"`
}

type GetQueueResponse struct {
	Queue   string `json:"queue"`
	Pending int64  `json:"pending"`
}

type GetItemRequest struct {
	ID string `in:"path=id"`
}

type ItemInfo struct {
	ID         string     `json:"id"`
	Callable   string     `json:"callable"`
	Queue      string     `json:"queue"`
	Args       string     `json:"args"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EnqueuedAt *time.Time `json:"enqueued_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
