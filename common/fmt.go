package common

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

// Printf 带时间与调用位置的控制台输出（仅保留文件名，避免打印完整构建路径）
func Printf(format string, v ...interface{}) {

	_, file, line, _ := runtime.Caller(1)
	loc := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	msg := fmt.Sprintf(format, v...)

	fmt.Println(time.Now().Format("2006-01-02 15:04:05.000"), "|", loc, "|", msg)
}

func Println(v ...interface{}) {

	_, file, line, _ := runtime.Caller(1)
	loc := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	msg := fmt.Sprint(v...)

	fmt.Println(time.Now().Format("2006-01-02 15:04:05.000"), "|", loc, "|", msg)
}
