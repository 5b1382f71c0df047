package cdn

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/any-hub/cdn-hub/internal/logging"
	"github.com/any-hub/cdn-hub/internal/remote"
)

// stage 是单次上传流水线的显式状态。
type stage int

const (
	stageParsingName stage = iota
	stageCheckingExistence
	stageStating
	stageUploading
	stageDone
	stageFailed
)

func (s stage) String() string {
	switch s {
	case stageParsingName:
		return "parsing_name"
	case stageCheckingExistence:
		return "checking_existence"
	case stageStating:
		return "stating"
	case stageUploading:
		return "uploading"
	case stageDone:
		return "done"
	default:
		return "failed"
	}
}

var errStaleTicket = errors.New("cdn: upload superseded")

// run 记录一次流水线执行过程中逐步得到的中间结果。
type run struct {
	key       string
	immediate bool
	ticket    Ticket
	stage     stage

	name      string
	suffix    string
	localPath string
	info      fs.FileInfo
	container remote.Container
	destName  string
	destURL   string
}

func (r *run) fields(action string) logrus.Fields {
	fields := logging.AssetFields(action, r.key, r.localPath)
	fields["stage"] = r.stage.String()
	if r.destName != "" {
		fields["dest"] = r.destName
	}
	return fields
}

// execute 在独立 goroutine 中跑完一次流水线，任何失败（含 panic）都会释放缓存槽位。
func (c *CDN) execute(r *run) {
	started := time.Now()

	ctx := context.Background()
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		if err = c.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer c.sem.Release(1)
		err = c.advance(ctx, r)
	})
	if recovered := pc.Recovered(); recovered != nil {
		err = recovered.AsError()
	}

	switch {
	case errors.Is(err, errStaleTicket):
		r.stage = stageFailed
		c.logger.WithFields(r.fields("upload")).Debug("upload superseded")
	case err != nil:
		r.stage = stageFailed
		if !c.cache.Fail(r.ticket) {
			err = fmt.Errorf("%w: %w", errStaleTicket, err)
		}
		c.logger.WithError(err).WithFields(r.fields("upload")).Warn("upload failed")
	}
	c.metrics.observeRun(err, time.Since(started))
}

// advance 依次推进 ParsingName → CheckingExistence → Stating → Uploading → Done。
func (c *CDN) advance(ctx context.Context, r *run) error {
	for r.stage != stageDone {
		var err error
		switch r.stage {
		case stageParsingName:
			err = c.parseName(r)
		case stageCheckingExistence:
			err = c.checkExistence(r)
		case stageStating:
			err = c.statFile(r)
		case stageUploading:
			err = c.upload(ctx, r)
		default:
			err = fmt.Errorf("cdn: unexpected stage %s", r.stage)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *CDN) parseName(r *run) error {
	r.name, r.suffix = ParseName(r.key)
	localPath, err := resolveLocal(c.root, r.name)
	if err != nil {
		return fmt.Errorf("%w: %q", err, r.name)
	}
	r.localPath = localPath
	r.stage = stageCheckingExistence
	return nil
}

func (c *CDN) checkExistence(r *run) error {
	info, err := c.fs.Stat(r.localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrLocalFileMissing, r.localPath)
	}
	r.info = info
	if err != nil {
		r.info = nil
	}
	r.stage = stageStating
	return nil
}

// statFile 确认目标是普通文件，并据修改时间算出目标名与 URL，随后注册监听。
func (c *CDN) statFile(r *run) error {
	info := r.info
	if info == nil {
		var err error
		info, err = c.fs.Stat(r.localPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", r.localPath, err)
		}
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotARegularFile, r.localPath)
	}

	container := c.currentContainer()
	if container == nil {
		return errors.New("cdn: container not ready")
	}
	r.container = container
	r.destName = DestName(r.name, info.ModTime())
	r.destURL = container.CDNURI() + "/" + r.destName + r.suffix

	c.ensureWatch(r.key, r.localPath, r.immediate)

	if r.immediate {
		c.cache.SetOptimistic(r.ticket, r.destURL)
	}
	r.stage = stageUploading
	return nil
}

func (c *CDN) upload(ctx context.Context, r *run) error {
	uploaded, err := r.container.AddFile(ctx, r.destName, r.localPath, c.headers.Clone())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUpload, err)
	}
	if !uploaded {
		return fmt.Errorf("%w: %s", ErrUploadNotConfirmed, r.destName)
	}

	if !c.cache.Resolve(r.ticket, r.destURL) {
		return errStaleTicket
	}
	r.stage = stageDone
	c.logger.WithFields(r.fields("upload")).WithField("url", r.destURL).Info("uploaded")
	return nil
}
