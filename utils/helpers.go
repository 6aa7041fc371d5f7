package utils

import (
	"time"

	"github.com/google/uuid"
)

// UUID Generation
func GenerateUUID() string {
	return uuid.New().String()
}

func Float64Ptr(f float64) *float64 {
	return &f
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func FormatDuration(duration time.Duration) string {
	return duration.Truncate(time.Second).String()
}
