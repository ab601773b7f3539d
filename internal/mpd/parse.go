package mpd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	m "github.com/Eyevinn/dash-mpd/mpd"
)

// ParseMPD downloads the MPD at mpdURL into destDir, parses it, and returns
// the representations of every AdaptationSet in every Period, along with the
// nominal media segment duration of the first one. Representations are not
// filtered by content type, so audio or other non-video sets are returned
// too. Only static (VoD) presentations are supported; live-edge timing is
// out of scope.
func ParseMPD(ctx context.Context, mpdURL, destDir string) ([]Representation, float64, error) {
	parts := strings.Split(mpdURL, "/")
	mpdName := parts[len(parts)-1]
	mpdPath := path.Join(destDir, mpdName)
	if err := downloadToFile(ctx, mpdURL, mpdPath); err != nil {
		return nil, 0, fmt.Errorf("download mpd: %w", err)
	}
	pmpd, err := m.ReadFromFile(mpdPath)
	if err != nil {
		return nil, 0, fmt.Errorf("read mpd: %w", err)
	}
	if pmpd.Type != nil && *pmpd.Type == "dynamic" {
		return nil, 0, fmt.Errorf("mpd: dynamic (live) presentations are not supported")
	}
	baseURL := getBase(mpdURL)
	var reps []Representation
	var segDuration float64
	for _, period := range pmpd.Periods {
		periodDur, err := period.GetDuration()
		if err != nil {
			return nil, 0, fmt.Errorf("period duration: %w", err)
		}
		for _, as := range period.AdaptationSets {
			segTmpl := as.SegmentTemplate
			for _, rep := range as.Representations {
				if rep.SegmentTemplate != nil {
					segTmpl = rep.SegmentTemplate
				}
				if segTmpl == nil {
					return nil, 0, fmt.Errorf("mpd: no SegmentTemplate for representation %s", rep.Id)
				}
				if rep.Bandwidth == nil {
					return nil, 0, fmt.Errorf("mpd: representation %s has no bandwidth", rep.Id)
				}
				initStr, _ := rep.GetInit()
				media, _ := rep.GetMedia()
				dur := segmentDurationSeconds(segTmpl)
				if segDuration == 0 {
					segDuration = dur
				}
				startNr := 1
				if segTmpl.StartNumber != nil {
					startNr = int(*segTmpl.StartNumber)
				}
				mediaURLs, err := expandMediaURLs(segTmpl, media, periodDur)
				if err != nil {
					return nil, 0, err
				}
				sizes, err := probeSizes(ctx, baseURL, mediaURLs)
				if err != nil {
					return nil, 0, err
				}
				reps = append(reps, Representation{
					Bandwidth:       *rep.Bandwidth,
					InitURL:         baseURL + initStr,
					MediaURLs:       prefixAll(baseURL, mediaURLs),
					Sizes:           sizes,
					SegmentDuration: dur,
					StartNumber:     startNr,
				})
			}
		}
	}
	if len(reps) == 0 {
		return nil, 0, fmt.Errorf("mpd: no representations found")
	}
	return reps, segDuration, nil
}

func segmentDurationSeconds(segTmpl *m.SegmentTemplateType) float64 {
	if segTmpl.Duration == nil {
		return 0
	}
	timescale := uint64(1)
	if segTmpl.Timescale != nil {
		timescale = *segTmpl.Timescale
	}
	return float64(*segTmpl.Duration) / float64(timescale)
}

// expandMediaURLs turns a $Number$/$Time$ SegmentTemplate into the ordered
// list of relative media segment URLs, adapted from
// cmd/dashfetcher/app/fetcher.go's downloadSegmentNumber/
// downloadSegmentTimeLineWithTime.
func expandMediaURLs(segTmpl *m.SegmentTemplateType, media string, periodDurNS uint64) ([]string, error) {
	switch {
	case segTmpl.SegmentTimeline != nil:
		stl := segTmpl.SegmentTimeline
		if !strings.Contains(media, "$Time$") {
			return nil, fmt.Errorf("mpd: SegmentTimeline without $Time$ is not supported")
		}
		var urls []string
		startTime := uint64(0)
		for _, s := range stl.S {
			if s.T != nil {
				startTime = *s.T
			}
			urls = append(urls, replaceTime(media, startTime))
			startTime += s.D
			for i := 0; i < s.R; i++ {
				urls = append(urls, replaceTime(media, startTime))
				startTime += s.D
			}
		}
		return urls, nil
	case strings.Contains(media, "$Number$"):
		startNr := uint64(1)
		if segTmpl.StartNumber != nil {
			startNr = *segTmpl.StartNumber
		}
		if segTmpl.Duration == nil {
			return nil, fmt.Errorf("mpd: segment duration not set")
		}
		timescale := uint64(1)
		if segTmpl.Timescale != nil {
			timescale = *segTmpl.Timescale
		}
		totDurMS := periodDurNS / 1_000_000
		nrSegments := totDurMS * timescale / (*segTmpl.Duration * 1000)
		var urls []string
		for i := startNr; i < startNr+nrSegments; i++ {
			urls = append(urls, replaceNumber(media, i))
		}
		return urls, nil
	default:
		return nil, fmt.Errorf("mpd: unsupported media template %q", media)
	}
}

func replaceTime(media string, t uint64) string {
	return strings.Replace(media, "$Time$", strconv.FormatUint(t, 10), 1)
}

func replaceNumber(media string, nr uint64) string {
	return strings.Replace(media, "$Number$", strconv.FormatUint(nr, 10), 1)
}

func prefixAll(base string, rel []string) []string {
	out := make([]string, len(rel))
	for i, r := range rel {
		out[i] = base + r
	}
	return out
}

// probeSizes fetches the Content-Length of each media segment with HEAD
// requests. DASH profiles don't all carry explicit per-segment byte sizes in
// the MPD, so the size-aware policies need this one-time probe at startup
// rather than a size attached to every decision.
func probeSizes(ctx context.Context, baseURL string, absMediaURLs []string) ([]int64, error) {
	sizes := make([]int64, len(absMediaURLs))
	for i, u := range absMediaURLs {
		full := u
		if !strings.HasPrefix(full, "http") {
			full = baseURL + u
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, full, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			// Size probing is best-effort: a HEAD failure just leaves 0,
			// which AverageSegmentSizes/SegmentSizesAt already treat as
			// "no sample".
			continue
		}
		sizes[i] = resp.ContentLength
		resp.Body.Close()
	}
	return sizes, nil
}

func getBase(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx == -1 {
		return ""
	}
	return u[:idx+1]
}

func downloadToFile(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("could not read %s. Code %d", url, resp.StatusCode)
	}
	if err := os.MkdirAll(path.Dir(outPath), 0o755); err != nil {
		return err
	}
	ofh, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer ofh.Close()
	_, err = io.Copy(ofh, resp.Body)
	return err
}
