package fetch

import (
	"net/url"
	"strings"
)

const viewerBase = "https://blog.naver.com/PostView.naver"

// ViewerURL maps a Naver blog post URL to the PostView document that
// carries the actual content. Canonical post URLs serve a frame shell, so
// fetching them directly yields nothing useful.
//
// Rules: URLs already pointing at a PostView path pass through unchanged;
// a two-segment /{blogId}/{logNo} path becomes the PostView URL; anything
// else (including non-Naver hosts) is fetched as-is.
func ViewerURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !isNaverBlogHost(u.Host) {
		return raw
	}
	if strings.HasPrefix(u.Path, "/PostView") {
		return raw
	}

	segments := splitPath(u.Path)
	if len(segments) != 2 {
		return raw
	}

	q := url.Values{}
	q.Set("blogId", segments[0])
	q.Set("logNo", segments[1])
	return viewerBase + "?" + q.Encode()
}

func isNaverBlogHost(host string) bool {
	host = strings.ToLower(host)
	return host == "blog.naver.com" || host == "m.blog.naver.com"
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
