// Package rpc is the client side of the status API of a running orchestrator.
package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowkeeper/internal/models"
)

// HTTPConfig 定义HTTP客户端配置
type HTTPConfig struct {
	Address string        //状态API侦听地址，tcp 为 host:port，unix 为 socket 路径
	Network string        //unix,tcp
	Timeout time.Duration // 默认超时时间
	BaseURL string        // 基础URL
}

/**
 * DefaultHTTPConfig 返回默认HTTP客户端配置
 * @param {string} address - 状态API地址，例如 "127.0.0.1:8080"；以 / 开头时按 unix socket 处理
 * @returns {*HTTPConfig} 客户端配置
 */
func DefaultHTTPConfig(address string) *HTTPConfig {
	c := &HTTPConfig{
		Address: address,
		Network: "tcp",
		Timeout: 5 * time.Second,
		BaseURL: "http://localhost",
	}
	if strings.HasPrefix(address, "/") {
		c.Network = "unix"
	}
	if c.Address == "" {
		c.Address = "127.0.0.1:8080"
	}
	if strings.HasPrefix(c.Address, ":") {
		c.Address = "127.0.0.1" + c.Address
	}
	return c
}

// HTTPResponse 状态API的一次响应
type HTTPResponse struct {
	StatusCode int
	Body       []byte
	Error      string //非 2xx 响应时的错误信息
}

// Decode 将成功响应的 body 解析到 v，失败响应返回带错误信息的 error
func (r *HTTPResponse) Decode(v any) error {
	if r.Error != "" {
		return fmt.Errorf("status %d: %s", r.StatusCode, r.Error)
	}
	return json.Unmarshal(r.Body, v)
}

// buildURL 拼接 base、path 和查询参数
func buildURL(base, path string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u = u.JoinPath(path)
	if len(params) > 0 {
		q := make(url.Values, len(params))
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

/**
 * readResponse 读取响应并提取错误信息
 * @param {*http.Response} resp - 状态API的响应，读取后关闭
 * @returns {*HTTPResponse} 非 2xx 时 Error 为 models.ErrorResponse.Error，无法解析时为状态行
 * @returns {error} 读取 body 失败时返回错误
 */
func readResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	r := &HTTPResponse{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode/100 == 2 {
		return r, nil
	}
	var errBody models.ErrorResponse
	if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
		r.Error = errBody.Error
	} else {
		r.Error = resp.Status
	}
	return r, nil
}
