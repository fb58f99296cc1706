package chat

import (
	"context"

	"groupchat/pkg/client"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
)

// SchedulerMember is the slice of a persona the scheduler endpoint needs.
type SchedulerMember struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality"`
}

// SchedulerRequest asks the server which personas should reply, and in
// what order.
type SchedulerRequest struct {
	Message string             `json:"message"`
	History []models.ChatEntry `json:"history"`
	Members []SchedulerMember  `json:"members"`
}

// SchedulerResponse lists the chosen speaker ids in speaking order.
type SchedulerResponse struct {
	Success  bool     `json:"success"`
	Speakers []string `json:"speakers"`
	Error    string   `json:"error,omitempty"`
}

// Scheduler picks which personas reply to a user message.
type Scheduler interface {
	Pick(ctx context.Context, req SchedulerRequest) ([]string, error)
}

// HTTPScheduler calls the server's scheduler endpoint.
type HTTPScheduler struct {
	client *client.Client
}

func NewHTTPScheduler(c *client.Client) *HTTPScheduler {
	return &HTTPScheduler{client: c}
}

func (s *HTTPScheduler) Pick(ctx context.Context, req SchedulerRequest) ([]string, error) {
	var resp SchedulerResponse
	if err := s.client.PostJSON(ctx, "/api/scheduler", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		logger.Warn("scheduler_declined", "error", resp.Error)
		return nil, nil
	}
	return resp.Speakers, nil
}
