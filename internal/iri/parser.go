// Package iri scrapes train timetables and is the last-resort route source.
package iri

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/imroc/req/v3"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"

// minimum columns of a timetable row; code is column 2
const minTimetableCols = 14

var ErrNoTimetable = errors.New("timetable not found in page")

type Client struct {
	limiter *rate.Limiter
	http    *req.Client
	baseURL string
}

// NewClient returns a timetable scraper for baseURL, e.g. https://indiarailinfo.com.
func NewClient(baseURL string, limiter *rate.Limiter) *Client {
	return &Client{
		limiter: limiter,
		http:    req.C().SetTimeout(30 * time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Stop is one timetable row.
type Stop struct {
	StationCode string
	StationName string
	Stops       bool
}

// StationCodes returns the halting stations of trainNo in travel order.
func (c *Client) StationCodes(ctx context.Context, trainNo string) ([]string, error) {
	stops, err := c.FetchTimetable(ctx, trainNo)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(stops))
	for _, s := range stops {
		if s.Stops {
			codes = append(codes, s.StationCode)
		}
	}
	return codes, nil
}

func (c *Client) FetchTimetable(ctx context.Context, trainNo string) ([]Stop, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timetableURL := fmt.Sprintf("%s/train/timetable/all/%s", c.baseURL, trainNo)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Accept":          "text/html",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
			"User-Agent":      userAgent,
		}).
		Get(timetableURL)
	if err != nil {
		return nil, fmt.Errorf("timetable request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timetable unexpected status %d", resp.StatusCode)
	}
	return ParseTimetable(bytes.NewReader(resp.Bytes()))
}

// ParseTimetable reads the schedule grid of a timetable page.
func ParseTimetable(r io.Reader) ([]Stop, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("timetable html parse failed: %w", err)
	}

	table := doc.Find("div.newschtable")
	if table.Length() == 0 {
		return nil, ErrNoTimetable
	}

	var stops []Stop
	table.Children().Each(func(_ int, row *goquery.Selection) {
		cols := row.Children()
		if cols.Length() < minTimetableCols {
			return
		}
		code := strings.TrimSpace(cols.Eq(2).Text())
		// header row repeats the column titles
		if code == "" || code == "Code" {
			return
		}
		stops = append(stops, Stop{
			StationCode: code,
			StationName: strings.TrimSpace(cols.Eq(3).Text()),
			// pass-through rows are rendered brown
			Stops: !row.HasClass("brownColor"),
		})
	})

	if len(stops) < 2 {
		return nil, fmt.Errorf("insufficient route data: routes=%d", len(stops))
	}
	return stops, nil
}
