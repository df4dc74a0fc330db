package core

// Status 扫描状态机: idle → starting → preparing → running → {finished | aborted | failed}
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusPreparing Status = "preparing"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s ends a scan session.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAborted || s == StatusFailed
}

// ScanProgress 观察者可见的状态快照，只由扫描控制器修改
type ScanProgress struct {
	ScanID   string `json:"scan_id,omitempty"`
	Status   Status `json:"status"`
	Current  string `json:"current"`
	Level    string `json:"level,omitempty"` // Current 对应结果的严重级别
	Finished int    `json:"finished"`
	Total    *int   `json:"total"` // 扫描器公布模板总数之前为 nil
	Code     *int   `json:"code"`
	Error    string `json:"error,omitempty"`
}
