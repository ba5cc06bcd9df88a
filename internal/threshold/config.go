package threshold

import (
	"encoding/json"
	"fmt"

	"github.com/thisdougb/telemetryd/internal/errs"
)

// configSchemaVersion is the version field every stored trigger
// configuration must carry; a mismatch is a version_mismatch error
// per §6/§7.
const configSchemaVersion = 1

// discriminator values for StoredConfig.ThresholdParamsDiscriminator.
const (
	discriminatorNumeric  = 0
	discriminatorDiscrete = 1
)

// SensorParam is one sensor entry in a stored trigger's sensor list,
// per §6.
type SensorParam struct {
	Service  string `json:"service"`
	Path     string `json:"path"`
	Metadata string `json:"metadata"`
}

// NumericParam is one numeric threshold entry, per §6.
type NumericParam struct {
	Type      string  `json:"type"`
	DwellTime int64   `json:"dwellTime"`
	Direction string  `json:"direction"`
	Value     float64 `json:"thresholdValue"`
}

// DiscreteParam is one discrete threshold entry, per §6. Value is a
// pointer so the JSON schema can express "onChange" with an absent
// field rather than a sentinel number.
type DiscreteParam struct {
	Name      string   `json:"name"`
	Severity  string   `json:"severity"`
	DwellTime int64    `json:"dwellTime"`
	Value     *float64 `json:"thresholdValue,omitempty"`
}

// StoredConfig is the trigger configuration JSON schema of §6, and
// the return value of a dump-configuration style accessor.
type StoredConfig struct {
	Version                      int             `json:"version"`
	ID                           string          `json:"id"`
	Name                         string          `json:"name"`
	ThresholdParamsDiscriminator int             `json:"thresholdParamsDiscriminator"`
	TriggerActions               []string        `json:"triggerActions"`
	ReportIDs                    []string        `json:"reportIds"`
	Sensors                      []SensorParam   `json:"sensors"`
	NumericParams                []NumericParam  `json:"numericThresholdParams,omitempty"`
	DiscreteParams               []DiscreteParam `json:"discreteThresholdParams,omitempty"`
}

// EncodeConfig serializes cfg with the current schema version.
func EncodeConfig(cfg StoredConfig) ([]byte, error) {
	cfg.Version = configSchemaVersion
	if len(cfg.DiscreteParams) > 0 {
		cfg.ThresholdParamsDiscriminator = discriminatorDiscrete
	} else {
		cfg.ThresholdParamsDiscriminator = discriminatorNumeric
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errs.New(errs.PersistenceIO, "threshold.EncodeConfig", err)
	}
	return b, nil
}

// DecodeConfig parses a stored trigger configuration, rejecting any
// version other than the one this build understands.
func DecodeConfig(data []byte) (StoredConfig, error) {
	var cfg StoredConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoredConfig{}, errs.New(errs.PersistenceIO, "threshold.DecodeConfig", err)
	}
	if cfg.Version != configSchemaVersion {
		return StoredConfig{}, errs.New(errs.VersionMismatch, "threshold.DecodeConfig",
			fmt.Errorf("got version %d, want %d", cfg.Version, configSchemaVersion))
	}
	return cfg, nil
}

// BlobKey returns the Key->JSON store key for trigger id, per §6.
func BlobKey(id string) string {
	return "Trigger/" + id + "/configuration.json"
}

// ToKind converts a stored numeric param to a NumericKind.
func (p NumericParam) ToKind() (NumericKind, error) {
	typ, ok := ParseNumericType(p.Type)
	if !ok {
		return NumericKind{}, errs.Newf(errs.InvalidArgument, "threshold.NumericParam", "unknown type %q", p.Type)
	}
	dir, ok := ParseDirection(p.Direction)
	if !ok {
		return NumericKind{}, errs.Newf(errs.InvalidArgument, "threshold.NumericParam", "unknown direction %q", p.Direction)
	}
	return NumericKind{Type: typ, Direction: dir, DwellMs: p.DwellTime, Value: p.Value}, nil
}

// ToKind converts a stored discrete param to a DiscreteKind.
func (p DiscreteParam) ToKind() (DiscreteKind, error) {
	sev, ok := ParseSeverity(p.Severity)
	if !ok {
		return DiscreteKind{}, errs.Newf(errs.InvalidArgument, "threshold.DiscreteParam", "unknown severity %q", p.Severity)
	}
	return DiscreteKind{Name: p.Name, Severity: sev, DwellMs: p.DwellTime, Value: p.Value}, nil
}
