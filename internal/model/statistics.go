package model

// DashboardStatistics 管理面板统计
type DashboardStatistics struct {
	TotalKeys          int64 `json:"totalKeys"`
	ActiveKeys         int64 `json:"activeKeys"`
	InactiveKeys       int64 `json:"inactiveKeys"`
	SuccessfulRequests int64 `json:"successfulRequests"`
	FailedRequests     int64 `json:"failedRequests"`
}

// GetSuccessRate 计算兑换成功率
func (s *DashboardStatistics) GetSuccessRate() float64 {
	total := s.SuccessfulRequests + s.FailedRequests
	if total == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(total)
}

// TotalRequests returns the number of recorded redemption attempts.
func (s *DashboardStatistics) TotalRequests() int64 {
	return s.SuccessfulRequests + s.FailedRequests
}
