package app

import (
	"net/url"
	"path"
	"strings"
)

// AutoDir derives a per-run download directory from the MPD URL's path,
// appended to outDir with any overlapping trailing path segments of outDir
// collapsed, so repeated runs against different assets land in distinct
// directories without the caller naming one explicitly.
func AutoDir(rawMPDURL, outDir string) (string, error) {
	u, err := url.Parse(rawMPDURL)
	if err != nil {
		return "", err
	}

	urlParts := strings.Split(u.Path, "/")
	assetParts := urlParts[1 : len(urlParts)-1]
	outParts := strings.Split(outDir, "/")

	maxOutEnd := len(outParts) - 1
	minOutEnd := max(1, maxOutEnd-len(assetParts)+1)
	bestOutEnd := -1
	for outStart := maxOutEnd; outStart >= minOutEnd; outStart-- {
		outRange := maxOutEnd + 1 - outStart
		if outRange > len(assetParts) {
			break
		}
		match := true
		for i := range outRange {
			if outParts[outStart+i] != assetParts[i] {
				match = false
				break
			}
		}
		if match {
			bestOutEnd = outStart
		}
	}
	if bestOutEnd >= 0 {
		outParts = outParts[:bestOutEnd]
	}
	return path.Join(strings.Join(outParts, "/"), strings.Join(assetParts, "/")), nil
}
