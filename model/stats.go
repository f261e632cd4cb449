package model

type DailyStats struct {
	Day          string `json:"day"`
	SuccessCount int64  `json:"success_count"`
	FailureCount int64  `json:"failure_count"`
}

type InventoryCheckRequest struct {
	Force bool `json:"force"`
}

type InventoryCheckResponse struct {
	Unused    int64 `json:"unused"`
	AlertSent bool  `json:"alert_sent"`
}
