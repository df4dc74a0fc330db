package embedded

import (
	"embed"
)

// Content 内嵌的默认配置，外部配置文件不存在时使用。
//
//go:embed config/*.yaml
var Content embed.FS
