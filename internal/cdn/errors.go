package cdn

import "errors"

var (
	// ErrContainerInit 表示远端容器无法创建或定位。
	ErrContainerInit = errors.New("cdn: container init failed")
	// ErrLocalFileMissing 表示请求的本地文件不存在。
	ErrLocalFileMissing = errors.New("cdn: local file missing")
	// ErrNotARegularFile 表示目标是目录或特殊文件。
	ErrNotARegularFile = errors.New("cdn: not a regular file")
	// ErrInvalidPath 表示逻辑文件名解析后会越出 Root。
	ErrInvalidPath = errors.New("cdn: path escapes root")
	// ErrRemoteUpload 包装远端存储返回的上传错误。
	ErrRemoteUpload = errors.New("cdn: remote upload failed")
	// ErrUploadNotConfirmed 表示远端未确认写入。
	ErrUploadNotConfirmed = errors.New("cdn: upload not confirmed")
	// ErrWatchUnregister 仅在 Destroy 期间出现。
	ErrWatchUnregister = errors.New("cdn: watch unregister failed")
	// ErrAlreadyInitialized 表示 Init 被重复调用。
	ErrAlreadyInitialized = errors.New("cdn: already initialized")
)
