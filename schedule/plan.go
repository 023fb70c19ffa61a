package schedule

import (
	"sort"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/pkg/errors"

	"github.com/nextabc-lab/edgex-victron/loadctl"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

const (
	EventSunrise = "sunrise"
	EventSunset  = "sunset"
)

// Trigger 以日出或日落为基准的每日动作
type Trigger struct {
	Enabled bool
	Event   string
	Offset  time.Duration
}

// Window 一个地点的每日开关计划
type Window struct {
	Latitude  float64
	Longitude float64
	On        Trigger
	Off       Trigger
}

func (w Window) Validate() error {
	if w.Latitude < -90 || w.Latitude > 90 {
		return errors.Errorf("latitude out of range: %v", w.Latitude)
	}
	if w.Longitude < -180 || w.Longitude > 180 {
		return errors.Errorf("longitude out of range: %v", w.Longitude)
	}
	for _, t := range []Trigger{w.On, w.Off} {
		if t.Enabled && EventSunrise != t.Event && EventSunset != t.Event {
			return errors.Errorf("unknown solar event %q", t.Event)
		}
	}
	return nil
}

// Action 在某个UTC时刻执行的计划指令
type Action struct {
	At      time.Time
	Command loadctl.LoadCommand
	Event   string
}

// Plan 计算date所在UTC日的计划动作。触发器未启用或当天没有对应事件（极昼极夜）时跳过。
func Plan(w Window, date time.Time) []Action {
	date = date.UTC()
	rise, set := sunrise.SunriseSunset(w.Latitude, w.Longitude, date.Year(), date.Month(), date.Day())
	eventAt := func(event string) time.Time {
		if EventSunrise == event {
			return rise
		}
		return set
	}
	var out []Action
	add := func(t Trigger, cmd loadctl.LoadCommand) {
		if !t.Enabled {
			return
		}
		at := eventAt(t.Event)
		if at.IsZero() {
			return
		}
		out = append(out, Action{At: at.Add(t.Offset).UTC(), Command: cmd, Event: t.Event})
	}
	add(w.On, loadctl.CommandOn)
	add(w.Off, loadctl.CommandOff)
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
