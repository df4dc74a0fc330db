package core

import (
	"fmt"
	"runtime/debug"
)

// SafeCall 执行外部协作方 (AI 接口等)，捕获 panic 并转换为错误
func SafeCall[T any](name string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = fmt.Errorf("%s 发生 panic: %v\n堆栈:\n%s", name, r, debug.Stack())
		}
	}()

	return fn()
}
