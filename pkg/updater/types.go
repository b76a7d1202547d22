package updater

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/store"
	"mercator-hq/policysync/pkg/updater/callbacks"
)

// SaveMethod selects how fetched data is written to the store.
type SaveMethod string

const (
	// SaveMethodPut replaces the value at the destination path.
	SaveMethodPut SaveMethod = "PUT"

	// SaveMethodPatch merges the data into the destination as a JSON merge
	// patch.
	SaveMethodPatch SaveMethod = "PATCH"
)

// DataSourceEntry describes one piece of data to fetch and where to store
// it. Inline Data takes precedence over URL.
type DataSourceEntry struct {
	URL        string         `json:"url,omitempty" yaml:"url"`
	Data       any            `json:"data,omitempty" yaml:"data"`
	Config     map[string]any `json:"config,omitempty" yaml:"config"`
	Topics     []string       `json:"topics,omitempty" yaml:"topics"`
	DstPath    string         `json:"dst_path,omitempty" yaml:"dst_path"`
	SaveMethod SaveMethod     `json:"save_method,omitempty" yaml:"save_method"`

	// PeriodicUpdateInterval, in seconds, refetches the entry forever when
	// positive.
	PeriodicUpdateInterval float64 `json:"periodic_update_interval,omitempty" yaml:"periodic_update_interval"`
}

// Path returns the destination path, "/" when unset.
func (e DataSourceEntry) Path() string {
	if e.DstPath == "" {
		return store.Root
	}
	return e.DstPath
}

// Method returns the save method, PUT when unset.
func (e DataSourceEntry) Method() SaveMethod {
	if e.SaveMethod == "" {
		return SaveMethodPut
	}
	return SaveMethod(strings.ToUpper(string(e.SaveMethod)))
}

// EntryTopics returns the entry's topics. Entries without topics belong to
// the default data topic.
func (e DataSourceEntry) EntryTopics() []string {
	if len(e.Topics) == 0 {
		return []string{config.DefaultClientDataTopic}
	}
	return e.Topics
}

// Interval returns the periodic update interval, zero for one-shot
// entries.
func (e DataSourceEntry) Interval() time.Duration {
	if e.PeriodicUpdateInterval <= 0 {
		return 0
	}
	return time.Duration(e.PeriodicUpdateInterval * float64(time.Second))
}

// UpdateCallback lists one-off destinations for the report of a single
// update.
type UpdateCallback struct {
	Callbacks []callbacks.Entry `json:"callbacks,omitempty"`
}

// DataUpdate is a batch of entries to apply, as published on data topics.
type DataUpdate struct {
	ID       string            `json:"id,omitempty"`
	Entries  []DataSourceEntry `json:"entries"`
	Reason   string            `json:"reason,omitempty"`
	Callback UpdateCallback    `json:"callback,omitempty"`
}

// DataEntryReport is the outcome of one entry.
type DataEntryReport struct {
	Entry   DataSourceEntry `json:"entry"`
	Fetched bool            `json:"fetched"`
	Saved   bool            `json:"saved"`
	Hash    string          `json:"hash,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DataUpdateReport is the outcome of one update.
type DataUpdateReport struct {
	UpdateID string            `json:"update_id"`
	Reports  []DataEntryReport `json:"reports"`
	Reason   string            `json:"reason,omitempty"`
}

// Failed returns the reports of entries that were not saved.
func (r *DataUpdateReport) Failed() []DataEntryReport {
	var out []DataEntryReport
	for _, rep := range r.Reports {
		if !rep.Saved {
			out = append(out, rep)
		}
	}
	return out
}

// DataSourceConfig is the base data configuration loaded on every connect.
type DataSourceConfig struct {
	Entries []DataSourceEntry `json:"entries" yaml:"entries"`
}

// Hash returns the sha256 of the JSON encoding of data. Map keys are
// encoded in sorted order, so equal data always has the same hash.
func Hash(data any) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
