package models

type ServiceHealthResp struct {
	Service     string `json:"service"`
	Status      string `json:"status"`
	HealthIssue string `json:"health_issue"`
} // .ServiceHealthResp

// HealthyResp is the response a dependency returns when nothing is wrong with it.
func HealthyResp(service string) ServiceHealthResp {
	return ServiceHealthResp{
		Service:     service,
		Status:      STATUS_UP,
		HealthIssue: HEALTH_ISSUE_NONE,
	}
}

func (shr ServiceHealthResp) BuildErrorResponse(err error) ServiceHealthResp {
	shr.Status = STATUS_DOWN
	shr.HealthIssue = err.Error()
	return shr
}
