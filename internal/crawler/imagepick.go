package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// blockedURLSubstrings disqualify obvious non-content images. Matching is
// case-insensitive on the resolved URL.
var blockedURLSubstrings = []string{
	"favicon", "logo", "placeholder", "spacer", "blank",
	"icon", "icons", "sprite", "badge", "pixel",
}

// extByContentType maps accepted Content-Types to on-disk extensions.
// image/png is rejected outright; everything else must be an image type.
var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// imagePick is a downloaded, gate-passing representative image.
type imagePick struct {
	url  string
	ext  string
	data []byte
}

// selectImage walks the candidate cascade in priority order and returns
// the first candidate that passes every gate. The order is fixed:
// og:image, twitter:image, link[rel=image_src], largest srcset entry,
// article/figure/div.article img, any img.
func (c *Crawler) selectImage(ctx context.Context, pageHTML, pageURL string) (imagePick, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return imagePick{}, &core.ImageError{Reason: "decode", URL: pageURL, Err: err}
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return imagePick{}, &core.ImageError{Reason: "decode", URL: pageURL, Err: err}
	}

	var lastErr error
	for _, candidate := range imageCandidates(doc) {
		resolved, ok := resolveCandidate(base, candidate)
		if !ok {
			continue
		}
		pick, err := c.downloadImage(ctx, resolved)
		if err != nil {
			lastErr = err
			continue
		}
		return pick, nil
	}

	if lastErr != nil {
		return imagePick{}, lastErr
	}
	return imagePick{}, &core.ImageError{Reason: "no_candidate", URL: pageURL}
}

// imageCandidates returns raw candidate URLs in cascade priority order.
func imageCandidates(doc *goquery.Document) []string {
	var candidates []string
	add := func(u string) {
		if u = strings.TrimSpace(u); u != "" {
			candidates = append(candidates, u)
		}
	}

	if v, ok := doc.Find("meta[property='og:image']").First().Attr("content"); ok {
		add(v)
	}
	if v, ok := doc.Find("meta[name='twitter:image']").First().Attr("content"); ok {
		add(v)
	}
	if v, ok := doc.Find("link[rel='image_src']").First().Attr("href"); ok {
		add(v)
	}

	doc.Find("picture source").Each(func(_ int, s *goquery.Selection) {
		if srcset, ok := s.Attr("srcset"); ok {
			add(largestFromSrcset(srcset))
		}
	})

	doc.Find("article img, figure img, div.article img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
	})

	return candidates
}

// largestFromSrcset picks the best entry of a srcset attribute: max by
// width descriptor ("640w") first, then by density ("2x").
func largestFromSrcset(srcset string) string {
	var bestURL string
	bestWidth := -1
	bestDensity := -1.0

	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) == 0 {
			continue
		}
		u := fields[0]
		if len(fields) == 1 {
			if bestWidth < 0 && bestDensity < 0 && bestURL == "" {
				bestURL = u
			}
			continue
		}
		desc := fields[1]
		switch {
		case strings.HasSuffix(desc, "w"):
			w, err := strconv.Atoi(strings.TrimSuffix(desc, "w"))
			if err == nil && w > bestWidth {
				bestWidth = w
				bestURL = u
			}
		case strings.HasSuffix(desc, "x"):
			d, err := strconv.ParseFloat(strings.TrimSuffix(desc, "x"), 64)
			// Width descriptors always beat density descriptors.
			if err == nil && bestWidth < 0 && d > bestDensity {
				bestDensity = d
				bestURL = u
			}
		}
	}
	return bestURL
}

// resolveCandidate joins the candidate against the page URL and applies
// the URL-substring blocklist.
func resolveCandidate(base *url.URL, candidate string) (string, bool) {
	ref, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref).String()

	lower := strings.ToLower(resolved)
	for _, blocked := range blockedURLSubstrings {
		if strings.Contains(lower, blocked) {
			return "", false
		}
	}
	return resolved, true
}

// downloadImage fetches a candidate and applies the Content-Type and
// minimum-size gates for the configured crawler mode.
func (c *Crawler) downloadImage(ctx context.Context, imageURL string) (imagePick, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return imagePick{}, &core.ImageError{Reason: "http", URL: imageURL, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.Crawler.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return imagePick{}, &core.ImageError{Reason: "http", URL: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return imagePick{}, &core.ImageError{Reason: "http", URL: imageURL}
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	if contentType == "image/png" {
		return imagePick{}, &core.ImageError{Reason: "content_type", URL: imageURL}
	}
	ext, ok := extByContentType[contentType]
	if !ok {
		return imagePick{}, &core.ImageError{Reason: "content_type", URL: imageURL}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return imagePick{}, &core.ImageError{Reason: "http", URL: imageURL, Err: err}
	}

	minBytes := c.cfg.Thresholds.MinImageBytes(c.cfg.Crawler.Mode)
	if len(data) < minBytes {
		return imagePick{}, &core.ImageError{Reason: "below_min_bytes", URL: imageURL}
	}

	return imagePick{url: imageURL, ext: ext, data: data}, nil
}
