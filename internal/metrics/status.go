package metrics

import "sort"

// WorkerBucket is the number of completed requests served by one worker on
// one queue.
type WorkerBucket struct {
	Worker string `json:"worker"`
	Queue  int    `json:"queue"`
	Count  int    `json:"count"`
}

// FlattenWorkerBuckets converts a nested worker->queue->count map into a
// sorted slice. Rows are sorted by descending count, then worker and queue.
func FlattenWorkerBuckets(buckets map[string]map[int]int) []WorkerBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]WorkerBucket, 0, len(buckets))
	for w, queues := range buckets {
		for q, count := range queues {
			rows = append(rows, WorkerBucket{Worker: w, Queue: q, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Worker == rows[j].Worker {
				return rows[i].Queue < rows[j].Queue
			}
			return rows[i].Worker < rows[j].Worker
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
