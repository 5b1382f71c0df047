package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// SwiftOptions 配置 Cloud Files / Swift 客户端。提供 Username+APIKey 时通过 v1
// 鉴权换取 Token；直接提供 StorageURL+Token 时跳过鉴权。
type SwiftOptions struct {
	Client     *http.Client
	Logger     *logrus.Logger
	AuthURL    string
	Username   string
	APIKey     string
	StorageURL string
	CDNURL     string
	Token      string
}

type swiftSession struct {
	token      string
	storageURL string
	cdnURL     string
}

// SwiftStore 实现 Store，所有请求共享同一个 http.Client 与会话。
type SwiftStore struct {
	client *http.Client
	logger *logrus.Logger
	opts   SwiftOptions

	mu      sync.Mutex
	session *swiftSession
}

// NewSwift 创建 Swift 存储；不会立即发起鉴权。
func NewSwift(opts SwiftOptions) (*SwiftStore, error) {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	hasToken := opts.StorageURL != "" && opts.Token != ""
	hasCreds := opts.AuthURL != "" && opts.Username != "" && opts.APIKey != ""
	if !hasToken && !hasCreds {
		return nil, errors.New("swift requires AuthURL+Username+APIKey or StorageURL+Token")
	}

	s := &SwiftStore{client: opts.Client, logger: opts.Logger, opts: opts}
	if hasToken {
		s.session = &swiftSession{
			token:      opts.Token,
			storageURL: strings.TrimRight(opts.StorageURL, "/"),
			cdnURL:     strings.TrimRight(opts.CDNURL, "/"),
		}
	}
	return s, nil
}

// CreateContainer 以 PUT 幂等创建容器，并在需要时开启 CDN 读取 X-CDN-URI。
func (s *SwiftStore) CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error) {
	if spec.Name == "" {
		return nil, errors.New("container name required")
	}

	var cdnURI string
	err := s.withSession(ctx, func(sess *swiftSession) (int, error) {
		// 没有 CDN 管理端点时直接对外暴露存储地址，容器需要公开读权限。
		var containerHeaders http.Header
		useCDN := spec.CDNEnabled && sess.cdnURL != ""
		if !useCDN {
			containerHeaders = http.Header{}
			containerHeaders.Set("X-Container-Read", ".r:*")
		}
		resp, err := s.do(ctx, http.MethodPut, sess.storageURL+"/"+escapeObjectPath(spec.Name), sess.token, containerHeaders, nil)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			return resp.StatusCode, nil
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
			return resp.StatusCode, &StatusError{Op: "create container", Code: resp.StatusCode}
		}

		cdnURI = sess.storageURL + "/" + escapeObjectPath(spec.Name)
		if !useCDN {
			return resp.StatusCode, nil
		}

		headers := http.Header{}
		headers.Set("X-CDN-Enabled", "True")
		cdnResp, err := s.do(ctx, http.MethodPut, sess.cdnURL+"/"+escapeObjectPath(spec.Name), sess.token, headers, nil)
		if err != nil {
			return 0, err
		}
		cdnResp.Body.Close()
		if cdnResp.StatusCode == http.StatusUnauthorized {
			return cdnResp.StatusCode, nil
		}
		if cdnResp.StatusCode/100 != 2 {
			return cdnResp.StatusCode, &StatusError{Op: "enable cdn", Code: cdnResp.StatusCode}
		}
		uri := strings.TrimRight(cdnResp.Header.Get("X-CDN-URI"), "/")
		if uri == "" {
			return cdnResp.StatusCode, errors.New("enable cdn: response missing X-CDN-URI")
		}
		cdnURI = uri
		return cdnResp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"action":    "swift_container",
		"container": spec.Name,
		"cdn_uri":   cdnURI,
	}).Debug("container ready")

	return &swiftContainer{store: s, name: spec.Name, cdnURI: cdnURI}, nil
}

// withSession 执行 fn；遇到 401 时清空会话重新鉴权并重试一次。
func (s *SwiftStore) withSession(ctx context.Context, fn func(*swiftSession) (int, error)) error {
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := s.currentSession(ctx)
		if err != nil {
			return err
		}
		code, err := fn(sess)
		if err != nil {
			return err
		}
		if code != http.StatusUnauthorized {
			return nil
		}
		if !s.invalidate(sess) {
			break
		}
	}
	return &StatusError{Op: "swift request", Code: http.StatusUnauthorized}
}

func (s *SwiftStore) currentSession(ctx context.Context) (*swiftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session, nil
	}
	sess, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// invalidate 丢弃过期会话；仅凭证模式可以重新鉴权。
func (s *SwiftStore) invalidate(stale *swiftSession) bool {
	if s.opts.Username == "" || s.opts.APIKey == "" {
		return false
	}
	s.mu.Lock()
	if s.session == stale {
		s.session = nil
	}
	s.mu.Unlock()
	return true
}

// authenticate 走 Cloud Files v1 鉴权：X-Auth-User/X-Auth-Key 换取 Token 与端点。
func (s *SwiftStore) authenticate(ctx context.Context) (*swiftSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.AuthURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-User", s.opts.Username)
	req.Header.Set("X-Auth-Key", s.opts.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swift auth: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Op: "swift auth", Code: resp.StatusCode}
	}

	sess := &swiftSession{
		token:      resp.Header.Get("X-Auth-Token"),
		storageURL: strings.TrimRight(resp.Header.Get("X-Storage-Url"), "/"),
		cdnURL:     strings.TrimRight(resp.Header.Get("X-CDN-Management-Url"), "/"),
	}
	if sess.token == "" || sess.storageURL == "" {
		return nil, errors.New("swift auth: response missing token or storage url")
	}

	s.logger.WithFields(logrus.Fields{
		"action":      "swift_auth",
		"storage_url": sess.storageURL,
	}).Debug("authenticated")
	return sess, nil
}

func (s *SwiftStore) do(ctx context.Context, method, target, token string, headers http.Header, body *os.File) (*http.Response, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, http.NoBody)
	}
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("X-Auth-Token", token)
	if body != nil {
		if info, statErr := body.Stat(); statErr == nil {
			req.ContentLength = info.Size()
		}
	}
	return s.client.Do(req)
}

type swiftContainer struct {
	store  *SwiftStore
	name   string
	cdnURI string
}

func (c *swiftContainer) Name() string   { return c.name }
func (c *swiftContainer) CDNURI() string { return c.cdnURI }

// AddFile 以 PUT 上传对象；201 视为确认写入，其它 2xx 视为未确认。
func (c *swiftContainer) AddFile(ctx context.Context, destName, localPath string, headers http.Header) (bool, error) {
	objHeaders := headers.Clone()
	if objHeaders == nil {
		objHeaders = http.Header{}
	}
	if objHeaders.Get("Content-Type") == "" {
		objHeaders.Set("Content-Type", ContentType(destName))
	}

	var uploaded bool
	err := c.store.withSession(ctx, func(sess *swiftSession) (int, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return 0, err
		}
		defer f.Close()

		target := sess.storageURL + "/" + escapeObjectPath(c.name) + "/" + escapeObjectPath(destName)
		resp, err := c.store.do(ctx, http.MethodPut, target, sess.token, objHeaders, f)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
		case resp.StatusCode == http.StatusCreated:
			uploaded = true
		case resp.StatusCode/100 == 2:
			uploaded = false
		default:
			return resp.StatusCode, &StatusError{Op: "put object", Code: resp.StatusCode}
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return false, err
	}
	return uploaded, nil
}
