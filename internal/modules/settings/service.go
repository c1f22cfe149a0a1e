package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// ErrUnknownSetting is returned for keys missing from SettingDefaults.
var ErrUnknownSetting = errors.New("unknown setting")

// ErrInvalidValue marks a value of the wrong type or outside its range.
var ErrInvalidValue = errors.New("invalid setting value")

var numericRanges = map[string]analysis.Range{
	KeyLowerBound:     analysis.LowerBoundRange,
	KeyUpperBound:     analysis.UpperBoundRange,
	KeyRiskFreeRate:   analysis.RiskFreeRateRange,
	KeyTargetReturn:   analysis.TargetReturnRange,
	KeyTau:            {Min: 0, Max: 1},
	KeyRunHistoryKeep: {Min: 1, Max: 100000},
	KeyPreviewRows:    {Min: 1, Max: 100},
}

// Service provides settings business logic
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetAll retrieves all settings with defaults
func (s *Service) GetAll() (map[string]interface{}, error) {
	dbValues, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(SettingDefaults))
	for key, defaultValue := range SettingDefaults {
		result[key] = defaultValue
		dbValue, exists := dbValues[key]
		if !exists {
			continue
		}
		if StringSettings[key] {
			result[key] = dbValue
			continue
		}
		if floatVal, err := strconv.ParseFloat(dbValue, 64); err == nil {
			result[key] = floatVal
		}
	}
	return result, nil
}

// Get retrieves a setting value with fallback to default
func (s *Service) Get(key string) (interface{}, error) {
	defaultValue, exists := SettingDefaults[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	dbValue, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if dbValue != nil {
		if StringSettings[key] {
			return *dbValue, nil
		}
		if floatVal, err := strconv.ParseFloat(*dbValue, 64); err == nil {
			return floatVal, nil
		}
	}
	return defaultValue, nil
}

// Set validates and stores a single setting.
func (s *Service) Set(key string, value interface{}) error {
	return s.SetMany(map[string]interface{}{key: value})
}

// SetMany validates every update against the current values, then writes
// them together. Nothing is written when any update is rejected.
func (s *Service) SetMany(updates map[string]interface{}) error {
	current, err := s.GetAll()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	stored := make(map[string]string, len(updates))
	for _, key := range keys {
		normalized, str, err := normalize(key, updates[key])
		if err != nil {
			return err
		}
		current[key] = normalized
		stored[key] = str
	}

	lower, _ := current[KeyLowerBound].(float64)
	upper, _ := current[KeyUpperBound].(float64)
	if lower >= upper {
		return fmt.Errorf("%w: %v", ErrInvalidValue, optimization.ErrInvalidBounds)
	}

	if err := s.repo.SetMany(stored); err != nil {
		return err
	}
	s.log.Info().Strs("keys", keys).Msg("Settings updated")
	return nil
}

// normalize checks one value and returns its typed and stored forms.
func normalize(key string, value interface{}) (interface{}, string, error) {
	if _, exists := SettingDefaults[key]; !exists {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	if key == KeyMethod {
		str, ok := value.(string)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
		}
		method, err := optimization.ParseMethod(str)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return string(method), string(method), nil
	}

	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s must be a number", ErrInvalidValue, key)
		}
		f = parsed
	default:
		return nil, "", fmt.Errorf("%w: unsupported value type for setting %s", ErrInvalidValue, key)
	}

	if rng, ok := numericRanges[key]; ok && !rng.Contains(f) {
		return nil, "", fmt.Errorf("%w: %s must be between %g and %g", ErrInvalidValue, key, rng.Min, rng.Max)
	}
	return f, strconv.FormatFloat(f, 'f', -1, 64), nil
}

// DefaultRequest builds the dashboard's starting request from the stored
// settings.
func (s *Service) DefaultRequest() (analysis.Request, error) {
	values, err := s.GetAll()
	if err != nil {
		return analysis.DefaultRequest(), err
	}

	req := analysis.Request{
		Method:       optimization.Method(values[KeyMethod].(string)),
		LowerBound:   values[KeyLowerBound].(float64),
		UpperBound:   values[KeyUpperBound].(float64),
		RiskFreeRate: values[KeyRiskFreeRate].(float64),
		TargetReturn: values[KeyTargetReturn].(float64),
		Tau:          values[KeyTau].(float64),
	}
	if err := req.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("Stored defaults are invalid, using built-in defaults")
		return analysis.DefaultRequest(), nil
	}
	return req, nil
}

// RunHistoryKeep is the number of runs the prune job keeps.
func (s *Service) RunHistoryKeep() int {
	keep, err := s.repo.GetInt(KeyRunHistoryKeep, int(SettingDefaults[KeyRunHistoryKeep].(float64)))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read run history limit")
	}
	return keep
}

// PreviewRows is the number of rows shown in the data preview.
func (s *Service) PreviewRows() int {
	rows, err := s.repo.GetInt(KeyPreviewRows, int(SettingDefaults[KeyPreviewRows].(float64)))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read preview rows")
	}
	return rows
}
