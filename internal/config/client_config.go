package config

import (
	"strconv"
	"time"
)

type ClientConfig interface {
	GetHTTPTimeout() time.Duration
	GetBulkUploadWorkers() int
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(GetEnv("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBulkUploadWorkers bounds how many X-ray uploads run concurrently during a
// bulk upload.
func (Client) GetBulkUploadWorkers() int {
	n, err := strconv.Atoi(GetEnv("BULK_UPLOAD_WORKERS", "4"))
	if err != nil || n < 1 {
		return 4
	}
	return n
}
