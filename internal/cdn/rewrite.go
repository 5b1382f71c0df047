package cdn

import (
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// assetSelectors 列出会被改写的资源引用及其属性。
var assetSelectors = []struct {
	selector string
	attr     string
}{
	{"script[src]", "src"},
	{"img[src]", "src"},
	{"source[src]", "src"},
	{"link[href]", "href"},
}

// assetLinkRels 是会加载静态资源的 link 类型；canonical、alternate 等指向页面的不改写。
var assetLinkRels = map[string]bool{
	"stylesheet":    true,
	"icon":          true,
	"preload":       true,
	"modulepreload": true,
	"manifest":      true,
}

// RewriteHTML 把 page 中指向本站的静态资源引用替换为 accessor 给出的地址。
// page 是页面的逻辑文件名，相对引用按页面所在目录解析，和浏览器一致。
// accessor 返回值未变化（尚未上传）时保留属性原值。
func RewriteHTML(r io.Reader, page string, accessor Accessor, immediate bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	base := path.Dir("/" + NormalizeKey(page))
	for _, target := range assetSelectors {
		attr := target.attr
		doc.Find(target.selector).Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "link" && !isAssetLink(s) {
				return
			}
			value, ok := s.Attr(attr)
			if !ok || !isLocalReference(value) {
				return
			}
			resolved := resolveReference(base, strings.TrimSpace(value))
			if rewritten := accessor(resolved, immediate); rewritten != resolved {
				s.SetAttr(attr, rewritten)
			}
		})
	}
	return doc.Html()
}

// resolveReference 把相对引用拼到 base 目录下，返回以 / 开头的站点路径，后缀原样保留。
func resolveReference(base, ref string) string {
	if strings.HasPrefix(ref, "/") {
		return ref
	}
	name, suffix := ParseName(ref)
	joined := path.Join(base, name)
	if strings.HasSuffix(name, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined + suffix
}

func isAssetLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if assetLinkRels[token] {
			return true
		}
	}
	return false
}

func isLocalReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return false
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}
