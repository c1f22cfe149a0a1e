package settings

// Setting keys
const (
	KeyMethod         = "optimization_method"
	KeyLowerBound     = "lower_bound"
	KeyUpperBound     = "upper_bound"
	KeyRiskFreeRate   = "risk_free_rate"
	KeyTargetReturn   = "target_return"
	KeyTau            = "bl_tau"
	KeyRunHistoryKeep = "run_history_keep"
	KeyPreviewRows    = "preview_rows"
)

// SettingDefaults holds all default values for configurable settings
var SettingDefaults = map[string]interface{}{
	// Dashboard inputs
	KeyMethod:       "efficient_return", // efficient_return, max_sharpe or min_volatility
	KeyLowerBound:   0.0,                // Minimum weight per factor
	KeyUpperBound:   1.0,                // Maximum weight per factor
	KeyRiskFreeRate: 0.03,
	KeyTargetReturn: 0.08, // Used by efficient_return only

	// Black-Litterman
	KeyTau: 0.05,

	// Housekeeping
	KeyRunHistoryKeep: 200.0, // Runs kept in history.db by the prune job
	KeyPreviewRows:    5.0,
}

// StringSettings defines which settings should be treated as strings rather than floats
var StringSettings = map[string]bool{
	KeyMethod: true,
}

// SettingDescriptions holds human-readable descriptions for all settings
var SettingDescriptions = map[string]string{
	KeyMethod:         "Default optimisation objective (efficient_return, max_sharpe, min_volatility)",
	KeyLowerBound:     "Default minimum weight per factor (0 to 0.25)",
	KeyUpperBound:     "Default maximum weight per factor (0 to 1, above the minimum)",
	KeyRiskFreeRate:   "Annual risk-free rate used for the Sharpe ratio and alpha (0 to 0.06)",
	KeyTargetReturn:   "Annual return targeted by the efficient return objective (0.05 to 0.15)",
	KeyTau:            "Black-Litterman prior uncertainty scale (0 to 1)",
	KeyRunHistoryKeep: "Number of optimisation runs kept in the history",
	KeyPreviewRows:    "Rows shown in the data preview (1 to 100)",
}

// SettingUpdate represents a setting value update request
type SettingUpdate struct {
	Value interface{} `json:"value"`
}
