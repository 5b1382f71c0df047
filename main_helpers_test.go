package main

import (
	"bytes"
	"testing"
)

// useBufferWriters 在测试期间把 stdOut/stdErr 换成内存缓冲，结束后自动还原。
func useBufferWriters(t *testing.T) {
	t.Helper()

	prevOut, prevErr := stdOut, stdErr
	stdOut = &bytes.Buffer{}
	stdErr = &bytes.Buffer{}

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
}

// stdOutBuffer 返回 useBufferWriters 安装的 stdout 缓冲。
func stdOutBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf, ok := stdOut.(*bytes.Buffer)
	if !ok {
		t.Fatal("stdout 未被替换，先调用 useBufferWriters")
	}
	return buf
}

// stdErrBuffer 返回 useBufferWriters 安装的 stderr 缓冲。
func stdErrBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf, ok := stdErr.(*bytes.Buffer)
	if !ok {
		t.Fatal("stderr 未被替换，先调用 useBufferWriters")
	}
	return buf
}
