package metrics

import (
	"os"
	"path/filepath"
	"time"
)

// Collector periodically refreshes gauges that aren't naturally updated by
// the request path, namely storage usage per subtree.
type Collector struct {
	root   string
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector rooted at the filestore's
// Root directory.
func NewCollector(storageRoot string) *Collector {
	return &Collector{
		root:   storageRoot,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick, matching the refresh
// cadence of the ambient metrics stack elsewhere in this service.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, subtree := range []string{"uploads", "downloads", "temp"} {
		size, err := dirSize(filepath.Join(c.root, subtree))
		if err != nil {
			continue
		}
		StorageBytesUsed.WithLabelValues(subtree).Set(float64(size))
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
