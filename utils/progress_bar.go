package utils

/*
 * Progress bars track tables per database and statements per batch.
 */

import (
	"time"

	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

/*
 * PB_NONE draws nothing, which is what tests and --quiet runs use.
 * PB_INFO draws an incremental bar.
 * PB_VERBOSE also logs progress every INCR_PERCENT percent.
 */
const (
	PB_NONE = iota
	PB_INFO
	PB_VERBOSE

	INCR_PERCENT = 10
)

type ProgressBar interface {
	Start()
	Finish()
	Increment()
}

func NewProgressBar(count int, prefix string, showProgressBar int) ProgressBar {
	if showProgressBar == PB_NONE || count == 0 {
		return &NoopProgressBar{}
	}
	progress := mpb.New(mpb.WithWidth(60), mpb.WithRefreshRate(180*time.Millisecond))
	bar := progress.AddBar(int64(count), mpb.BarStyle(mpb.DefaultBarStyle),
		mpb.PrependDecorators(decor.Name(prefix), decor.CountersNoUnit(" (%d/%d)")),
		mpb.AppendDecorators(decor.Percentage()),
	)
	if showProgressBar == PB_VERBOSE {
		return &VerboseProgressBar{total: count, prefix: prefix, nextPercentToPrint: INCR_PERCENT, Bar: bar, Progress: progress}
	}
	return &ExtendProgressBar{Bar: bar, Progress: progress}
}

// ProgressBarMode picks the bar style matching the log verbosity.
func ProgressBarMode() int {
	switch gplog.GetVerbosity() {
	case gplog.LOGERROR:
		return PB_NONE
	case gplog.LOGINFO:
		return PB_INFO
	}
	return PB_VERBOSE
}

type NoopProgressBar struct{}

func (npb *NoopProgressBar) Increment() {}
func (npb *NoopProgressBar) Start()     {}
func (npb *NoopProgressBar) Finish()    {}

type ExtendProgressBar struct {
	*mpb.Bar
	*mpb.Progress
}

func (epb *ExtendProgressBar) Increment() { epb.Bar.Increment() }
func (epb *ExtendProgressBar) Start()     {}
func (epb *ExtendProgressBar) Finish()    { epb.Progress.Wait() }

type VerboseProgressBar struct {
	current            int
	total              int
	prefix             string
	nextPercentToPrint int
	*mpb.Bar
	*mpb.Progress
}

func (vpb *VerboseProgressBar) Increment() {
	vpb.Bar.Increment()
	if vpb.current < vpb.total {
		vpb.current++
		vpb.checkPercent()
	}
}

func (vpb *VerboseProgressBar) Start()  {}
func (vpb *VerboseProgressBar) Finish() { vpb.Progress.Wait() }

func (vpb *VerboseProgressBar) checkPercent() {
	currPercent := int(float64(vpb.current) / float64(vpb.total) * 100)
	closestMult := currPercent / INCR_PERCENT * INCR_PERCENT
	if closestMult >= vpb.nextPercentToPrint {
		vpb.nextPercentToPrint = closestMult
		gplog.Verbose("%s %d%% (%d/%d)", vpb.prefix, vpb.nextPercentToPrint, vpb.current, vpb.total)
		vpb.nextPercentToPrint += INCR_PERCENT
	}
}
