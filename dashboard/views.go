package dashboard

import (
	"net/url"
	"strconv"
	"time"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/history"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// Title heads every page.
const Title = "Digital Twin MVP: Cabin Component Monitor"

// PageView is the input of Page.
type PageView struct {
	Selected  cabintwin.Channel
	Readings  int
	LoadedAt  time.Time
	Life      lifemodel.Point
	Anomalies []anomaly.Event // most recent first
	Counts    map[cabintwin.Channel]int
	LastFEA   *fea.Output
	Runs      []history.FEARun
}

func percent(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64) + "%"
}

func decimal(x float64, places int) string {
	return strconv.FormatFloat(x, 'f', places, 64)
}

func chartURL(c cabintwin.Channel) string {
	return "/chart.png?sensor=" + url.QueryEscape(string(c))
}
