package cdn

import (
	"io/fs"
	"os"
)

// FileSystem 是流水线读取本地文件元信息的窄接口，便于测试注入。
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
}

// OSFileSystem 直接使用本地磁盘。
type OSFileSystem struct{}

// Stat 实现 FileSystem。
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Watcher 在本地文件变化时回调；同一路径只注册一次。
type Watcher interface {
	Watch(path string, onChange func()) error
	Unwatch(path string) error
}
