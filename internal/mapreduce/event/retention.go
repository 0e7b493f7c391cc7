package event

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mapreduce/storage"
)

// RetentionPolicy bounds how much of one event file is kept, grounded on
// the source's cook/execution/events/retention.rs enumerated options.
type RetentionPolicy struct {
	MaxAgeDays       *uint32
	MaxEvents        *int
	MaxFileSizeBytes *uint64
	ArchiveOldEvents bool
	ArchivePath      string
	CompressArchives bool
}

// Apply streams events from path oldest-to-newest, keeps those within
// the policy's age/count limits, and routes evicted events either to an
// archive file (optionally gzip-compressed) or to deletion. The live
// file is replaced atomically via write-temp-then-rename so a crash
// mid-retention never leaves a torn file: readers see either the
// pre-retention or the post-retention contents.
func Apply(path string, policy RetentionPolicy, now time.Time) (retained, evicted int, err error) {
	events, err := ReadFile(path)
	if err != nil {
		return 0, 0, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	keep := make([]model.Event, 0, len(events))
	drop := make([]model.Event, 0)

	for _, ev := range events {
		if keepEvent(ev, policy, now, len(keep)) {
			keep = append(keep, ev)
		} else {
			drop = append(drop, ev)
		}
	}

	if policy.MaxEvents != nil && len(keep) > *policy.MaxEvents {
		overflow := len(keep) - *policy.MaxEvents
		drop = append(drop, keep[:overflow]...)
		keep = keep[overflow:]
	}

	if policy.MaxFileSizeBytes != nil {
		keep, drop = trimToSize(keep, drop, *policy.MaxFileSizeBytes)
	}

	if len(drop) > 0 && policy.ArchiveOldEvents {
		if err := archive(drop, policy); err != nil {
			return 0, 0, fmt.Errorf("archive evicted events: %w", err)
		}
	}

	data, err := encodeJSONL(keep)
	if err != nil {
		return 0, 0, err
	}
	if err := storage.AtomicWriteFile(path, data, 0o644); err != nil {
		return 0, 0, fmt.Errorf("replace event file: %w", err)
	}

	return len(keep), len(drop), nil
}

func keepEvent(ev model.Event, policy RetentionPolicy, now time.Time, keptSoFar int) bool {
	if policy.MaxAgeDays != nil {
		maxAge := time.Duration(*policy.MaxAgeDays) * 24 * time.Hour
		if now.Sub(ev.Timestamp) > maxAge {
			return false
		}
	}
	return true
}

// trimToSize drops the oldest surviving events until the encoded size
// of the rest fits the byte budget.
func trimToSize(keep, drop []model.Event, maxBytes uint64) ([]model.Event, []model.Event) {
	for {
		data, err := encodeJSONL(keep)
		if err != nil || uint64(len(data)) <= maxBytes || len(keep) == 0 {
			return keep, drop
		}
		drop = append(drop, keep[0])
		keep = keep[1:]
	}
}

func encodeJSONL(events []model.Event) ([]byte, error) {
	var buf []byte
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event for retention: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

func archive(events []model.Event, policy RetentionPolicy) error {
	if policy.ArchivePath == "" {
		return fmt.Errorf("archive_old_events set without archive_path")
	}
	if err := storage.EnsureDir(filepath.Dir(policy.ArchivePath)); err != nil {
		return err
	}

	data, err := encodeJSONL(events)
	if err != nil {
		return err
	}

	if policy.CompressArchives {
		f, err := os.OpenFile(policy.ArchivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer f.Close()
		gz := gzip.NewWriter(f)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("write gzip archive: %w", err)
		}
		return gz.Close()
	}

	f, err := os.OpenFile(policy.ArchivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
