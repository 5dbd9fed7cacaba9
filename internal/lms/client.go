package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ActivitySync/internal/config"
	"ActivitySync/internal/model"
	"ActivitySync/internal/normalize"
	"ActivitySync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// Client LMS API只读客户端：lesson→course 反查与老师名单。
// 本系统不持有LMS数据，查询失败按 UpstreamFetchError 上抛，记录保持未修复。
type Client struct {
	cfg        *config.LMSConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg *config.LMSConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

// CourseForLesson GET /api/lessons/{id} → 所属课程ID与名称
func (c *Client) CourseForLesson(ctx context.Context, lessonID string) (string, string, error) {
	var out struct {
		Course struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"course"`
	}
	endpoint := fmt.Sprintf("%s/api/lessons/%s", c.cfg.BaseURL, url.PathEscape(lessonID))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return "", "", &model.UpstreamFetchError{Lookup: "lesson:" + lessonID, Err: err}
	}
	return out.Course.ID, out.Course.Name, nil
}

// Roster GET /api/teachers/{email}/roster → 学生邮箱列表（已归一）
func (c *Client) Roster(ctx context.Context, teacherEmail string) ([]string, error) {
	var out struct {
		Emails []string `json:"emails"`
	}
	endpoint := fmt.Sprintf("%s/api/teachers/%s/roster", c.cfg.BaseURL, url.PathEscape(teacherEmail))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, &model.UpstreamFetchError{Lookup: "roster:" + teacherEmail, Err: err}
	}
	emails := make([]string, 0, len(out.Emails))
	for _, e := range out.Emails {
		if n := normalize.Email(e); n != "" {
			emails = append(emails, n)
		}
	}
	return emails, nil
}

// getJSON 带重试的GET+解码，重试次数来自配置
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	attempts := c.cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		if c.cfg.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
				return
			}
			lastErr = json.NewDecoder(resp.Body).Decode(out)
		}()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
