package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// AssetFields 提供逻辑文件名与本地路径字段，供上传流水线日志复用。
func AssetFields(action, key, localPath string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
		"path":   localPath,
	}
}

// ContainerFields 描述远端容器及其公开地址。
func ContainerFields(action, container, cdnURI string) logrus.Fields {
	fields := logrus.Fields{
		"action":    action,
		"container": container,
	}
	if cdnURI != "" {
		fields["cdn_uri"] = cdnURI
	}
	return fields
}
