package report

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Meta 报告头部信息
type Meta struct {
	GeneratedAt time.Time
	Host        string
	OS          string
}

// DefaultMeta 采集当前主机信息
func DefaultMeta() Meta {
	m := Meta{GeneratedAt: time.Now(), Host: "unknown", OS: runtime.GOOS + "/" + runtime.GOARCH}
	if info, err := host.Info(); err == nil {
		m.Host = info.Hostname
		if info.Platform != "" {
			m.OS = fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch)
		}
	} else if h, err := os.Hostname(); err == nil {
		m.Host = h
	}
	return m
}

func (m Meta) timestamp() string {
	return m.GeneratedAt.Format("2006-01-02 15:04:05")
}
