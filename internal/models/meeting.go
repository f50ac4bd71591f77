package models

import "time"

// Meeting is a provider meeting. MeetingID identifies the series, UUID the first seen occurrence.
type Meeting struct {
	ID        int64     `json:"-"`
	MeetingID string    `json:"meeting_id"`
	UUID      string    `json:"uuid"`
	Topic     string    `json:"topic"`
	HostID    string    `json:"host_id"`
	StartTime time.Time `json:"start_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeetingAttrs are the provider-supplied fields used to create a meeting row.
type MeetingAttrs struct {
	MeetingID string
	UUID      string
	Topic     string
	HostID    string
	StartTime time.Time
}
