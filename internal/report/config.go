package report

import (
	"encoding/json"
	"fmt"

	"github.com/thisdougb/telemetryd/internal/errs"
)

// configSchemaVersion is the version field every stored report
// configuration must carry; a mismatch is a version_mismatch error
// per §6/§7.
const configSchemaVersion = 1

// MetricParam is one metric's configuration within a stored report,
// per the report configuration JSON schema of §6.
type MetricParam struct {
	SensorPaths         []string `json:"sensorPaths"`
	OperationType       string   `json:"operationType"`
	ID                  string   `json:"id"`
	Metadata            string   `json:"metadata"`
	CollectionTimeScope string   `json:"collectionTimeScope"`
	CollectionDuration  int64    `json:"collectionDuration"`
}

// StoredConfig is the report configuration JSON schema of §6, and
// also the return value of DumpConfiguration (§4.5).
type StoredConfig struct {
	Version       int           `json:"version"`
	Name          string        `json:"name"`
	Domain        string        `json:"domain"`
	ReportingType string        `json:"reportingType"`
	ReportAction  []string      `json:"reportAction"`
	ScanPeriod    int64         `json:"scanPeriod"`
	AppendLimit   int           `json:"appendLimit"`
	ReportUpdates string        `json:"reportUpdates"`
	Persistency   bool          `json:"persistency"`
	MetricParams  []MetricParam `json:"metricParams"`
}

// EncodeConfig serializes cfg with the current schema version.
func EncodeConfig(cfg StoredConfig) ([]byte, error) {
	cfg.Version = configSchemaVersion
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errs.New(errs.PersistenceIO, "report.EncodeConfig", err)
	}
	return b, nil
}

// DecodeConfig parses a stored report configuration, rejecting any
// version other than the one this build understands.
func DecodeConfig(data []byte) (StoredConfig, error) {
	var cfg StoredConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoredConfig{}, errs.New(errs.PersistenceIO, "report.DecodeConfig", err)
	}
	if cfg.Version != configSchemaVersion {
		return StoredConfig{}, errs.New(errs.VersionMismatch, "report.DecodeConfig",
			fmt.Errorf("got version %d, want %d", cfg.Version, configSchemaVersion))
	}
	return cfg, nil
}

// BlobKey returns the Key->JSON store key for report id, per §6.
func BlobKey(id string) string {
	return "Report/" + id + "/configuration.json"
}
