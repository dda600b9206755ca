package config

import "github.com/tokmz/relay/pkg/errors"

var (
	ErrConfigNotFound   = errors.New(3001, 500, "配置文件不存在", nil)
	ErrConfigReadFailed = errors.New(3003, 500, "配置文件读取失败", nil)
	ErrInvalidSettings  = errors.New(3004, 500, "配置项无效", nil)
)
