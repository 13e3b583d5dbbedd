package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/tvjuke/tvjuke/internal/season"
)

// Hash returns a stable fingerprint over the configuration subset whose
// changes invalidate the video index and queue snapshots: the directory
// lists and the index update interval. Field order is fixed by the struct,
// so equal configurations always produce equal hashes.
func (c *Config) Hash() string {
	type seasonalKey struct {
		Directory  string            `json:"directory"`
		Likelihood float64           `json:"likelihood"`
		Conditions season.Conditions `json:"conditions"`
	}
	seasonal := make([]seasonalKey, 0, len(c.SeasonalDirectories))
	for _, sd := range c.SeasonalDirectories {
		seasonal = append(seasonal, seasonalKey{
			Directory:  sd.Directory,
			Likelihood: sd.Likelihood,
			Conditions: sd.Conditions,
		})
	}

	subset := struct {
		Directories    []string      `json:"directories"`
		Seasonal       []seasonalKey `json:"seasonalDirectories"`
		UpdateInterval string        `json:"updateInterval"`
	}{
		Directories:    c.Directories,
		Seasonal:       seasonal,
		UpdateInterval: c.Video.UpdateInterval.String(),
	}

	data, err := json.Marshal(subset)
	if err != nil {
		// Marshaling a plain value struct cannot fail; guard anyway.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
