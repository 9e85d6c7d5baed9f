package predictions

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// BulkItem is one file in a bulk upload.
type BulkItem struct {
	PatientID   int64
	Path        string
	ImageType   string
	ToothRegion string
	Notes       string
}

// BulkResult pairs an item with its outcome; exactly one of Result and Err
// is set.
type BulkResult struct {
	Item   BulkItem
	Result *UploadResult
	Err    error
}

// BulkUploader submits many X-rays with bounded concurrency. One failed
// upload does not stop the rest.
type BulkUploader struct {
	service *Service
	workers int
}

// NewBulkUploader creates an uploader running at most workers uploads
// concurrently.
func NewBulkUploader(service *Service, workers int) *BulkUploader {
	if workers < 1 {
		workers = 1
	}
	return &BulkUploader{service: service, workers: workers}
}

// UploadAll uploads every item and returns results in input order. Cancelling
// the context stops unstarted items; their results carry ctx.Err().
func (b *BulkUploader) UploadAll(ctx context.Context, items []BulkItem) []BulkResult {
	results := make([]BulkResult, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.uploadOne(ctx, items[i])
			}
		}()
	}

	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			results[i] = BulkResult{Item: items[i], Err: ctx.Err()}
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func (b *BulkUploader) uploadOne(ctx context.Context, item BulkItem) BulkResult {
	if err := ctx.Err(); err != nil {
		return BulkResult{Item: item, Err: err}
	}

	file, err := os.Open(item.Path)
	if err != nil {
		return BulkResult{Item: item, Err: err}
	}
	defer file.Close()

	result, err := b.service.UploadAndPredict(ctx, Upload{
		PatientID:   item.PatientID,
		FileName:    filepath.Base(item.Path),
		Image:       file,
		ImageType:   item.ImageType,
		ToothRegion: item.ToothRegion,
		Notes:       item.Notes,
	})
	if err != nil {
		log.Warn().Err(err).Str("file", item.Path).Msg("bulk upload item failed")
		return BulkResult{Item: item, Err: err}
	}
	return BulkResult{Item: item, Result: result}
}
