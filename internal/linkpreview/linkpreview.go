package linkpreview

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Metadata 是发给客户端的链接预览数据。
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Fetcher 抓取消息里首个链接的 OpenGraph 元数据。
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (f *Fetcher) Timeout() time.Duration { return f.timeout }

// FromText 提取文本中的第一个 URL 并抓取其预览；
// 没有链接或抓取失败时 ok 为 false，调用方静默放弃。
func (f *Fetcher) FromText(ctx context.Context, text string) (*Metadata, bool) {
	link := urlPattern.FindString(text)
	if link == "" {
		return nil, false
	}
	meta, err := f.Fetch(ctx, link)
	if err != nil {
		return nil, false
	}
	if meta.Title == "" && meta.Description == "" && meta.Image == "" {
		return nil, false
	}
	return meta, true
}

// Fetch 请求页面并解析 og:title / og:description / og:image，
// 缺省回退到 <title>。
func (f *Fetcher) Fetch(ctx context.Context, link string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Poketab-LinkPreview/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 只读前 512KB，预览不需要整页。
	body := io.LimitReader(resp.Body, 512<<10)
	meta := Parse(body)
	meta.URL = link
	return meta, nil
}

// Parse 在 HTML 流里收集 OpenGraph meta 标签与标题。
func Parse(r io.Reader) *Metadata {
	meta := &Metadata{}
	z := html.NewTokenizer(r)
	var inTitle bool
	for {
		switch z.Next() {
		case html.ErrorToken:
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "meta":
				var property, name, content string
				for _, a := range t.Attr {
					switch a.Key {
					case "property":
						property = a.Val
					case "name":
						name = a.Val
					case "content":
						content = a.Val
					}
				}
				switch {
				case property == "og:title":
					meta.Title = content
				case property == "og:description" || name == "description":
					if meta.Description == "" {
						meta.Description = content
					}
				case property == "og:image":
					meta.Image = content
				}
			case "title":
				inTitle = true
			case "body":
				// head 结束即可停止，正文无关。
				return meta
			}
		case html.TextToken:
			if inTitle && meta.Title == "" {
				meta.Title = strings.TrimSpace(z.Token().Data)
			}
		case html.EndTagToken:
			if z.Token().Data == "title" {
				inTitle = false
			}
		}
	}
}
