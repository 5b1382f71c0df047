package cdn

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// NormalizeKey 去掉前导斜杠，得到缓存使用的逻辑文件名。
func NormalizeKey(filename string) string {
	return strings.TrimLeft(filename, "/")
}

// ParseName 将逻辑文件名拆成磁盘路径与 ?/# 后缀，后缀原样保留并只拼接到最终 URL。
func ParseName(filename string) (name, suffix string) {
	if idx := strings.IndexAny(filename, "?#"); idx >= 0 {
		return filename[:idx], filename[idx:]
	}
	return filename, ""
}

// DestName 生成带修改时间（毫秒）的远端对象名：x.js + 1000 → x-1000.js。
// 同一未修改文件总是得到同一名称，任何修改都会改变名称。
func DestName(name string, modTime time.Time) string {
	ext := path.Ext(name)
	if ext == "." {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	return base + "-" + strconv.FormatInt(modTime.UnixMilli(), 10) + ext
}

// NormalizeRoot 保证 root 以且仅以一个路径分隔符结尾。
func NormalizeRoot(root string) string {
	if root == "" {
		root = DefaultRoot
	}
	sep := string(filepath.Separator)
	trimmed := strings.TrimRight(root, "/"+sep)
	return trimmed + sep
}

// resolveLocal 将逻辑路径拼接到 root 下，拒绝 ../ 越界。
func resolveLocal(root, name string) (string, error) {
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", ErrInvalidPath
	}
	return root + filepath.FromSlash(clean), nil
}
