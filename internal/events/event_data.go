package events

// CalculationStartedData accompanies CalculationStarted events.
type CalculationStartedData struct {
	Engine string `json:"engine"`
}

// CalculationFinishedData accompanies CalculationFinished events.
type CalculationFinishedData struct {
	Engine     string `json:"engine"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// EngineChangedData accompanies EngineRegistered and EngineDeleted events.
type EngineChangedData struct {
	Engine string `json:"engine"`
}

// EnginesRebuiltData accompanies EnginesRebuilt events.
type EnginesRebuiltData struct {
	Count int `json:"count"`
}

// PricesSyncedData accompanies PricesSynced events.
type PricesSyncedData struct {
	Securities int `json:"securities"`
	Bars       int `json:"bars"`
}
