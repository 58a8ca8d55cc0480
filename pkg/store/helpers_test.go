package store

import (
	"time"

	"userdash/pkg/users"
)

const (
	time2s = 2 * time.Second
	tick   = 5 * time.Millisecond
)

func strPtr(s string) *string { return &s }

func rolePtr(r users.Role) *users.Role { return &r }

func statusPtr(s users.Status) *users.Status { return &s }

func boolPtr(b bool) *bool { return &b }
