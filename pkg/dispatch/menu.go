package dispatch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"jobybot/pkg/config"
	"jobybot/pkg/fsm"
	"jobybot/pkg/metrics"
	"jobybot/pkg/records"
	"jobybot/pkg/state"
)

const listLimit = 5

// matchMenu finds the button for text: the exact label, or any of its match phrases
// as a case-insensitive substring.
func (d *Dispatcher) matchMenu(text string) (config.MenuButton, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return config.MenuButton{}, false
	}
	lower := strings.ToLower(t)
	for _, b := range d.cfg.Menu.Buttons {
		if t == b.Label {
			return b, true
		}
		for _, m := range b.Match {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" && strings.Contains(lower, m) {
				return b, true
			}
		}
	}
	return config.MenuButton{}, false
}

func (d *Dispatcher) runMenuAction(ctx context.Context, btn config.MenuButton, in fsm.Input) fsm.Reply {
	metrics.MenuClicksTotal.WithLabelValues(btn.Action).Inc()
	d.stats.Record(ctx, "menu_"+btn.Action, in.UserID, map[string]interface{}{"label": btn.Label})

	msgs := d.cfg.Messages
	switch btn.Action {
	case config.ActionFindJobs:
		return d.findJobs(ctx, in.UserID)
	case config.ActionMyJobs:
		return d.myJobs(ctx, in.UserID)
	case config.ActionProfile:
		return d.profile(ctx, in.UserID)
	case config.ActionPostJob:
		return d.stepper.StartFlow(ctx, in, state.FlowJobPosting, records.RolePoster)
	case config.ActionHelp:
		return fsm.Reply{Text: msgs.Help, Menu: fsm.MenuMain}
	default:
		return fsm.Reply{Text: msgs.NotImplemented, Menu: fsm.MenuMain}
	}
}

// findJobs lists the newest listings in the user's city, or in all cities for unknown users.
func (d *Dispatcher) findJobs(ctx context.Context, userID int64) fsm.Reply {
	city := ""
	user, err := d.directory.FindUser(ctx, userID)
	if err != nil {
		return d.listFailed("find_jobs", err)
	}
	if user != nil && user.City != records.Placeholder {
		city = user.City
	}

	jobs, err := d.directory.ListByCity(ctx, city, listLimit)
	if err != nil {
		return d.listFailed("find_jobs", err)
	}
	return d.jobList(d.cfg.Messages.JobsHeader, d.cfg.Messages.NoJobs, jobs)
}

func (d *Dispatcher) myJobs(ctx context.Context, userID int64) fsm.Reply {
	jobs, err := d.directory.ListByOwner(ctx, userID, listLimit)
	if err != nil {
		return d.listFailed("my_jobs", err)
	}
	return d.jobList(d.cfg.Messages.OwnJobsHeader, d.cfg.Messages.NoOwnJobs, jobs)
}

func (d *Dispatcher) profile(ctx context.Context, userID int64) fsm.Reply {
	user, err := d.directory.FindUser(ctx, userID)
	if err != nil {
		return d.listFailed("profile", err)
	}
	if user == nil {
		return fsm.Reply{Text: d.cfg.Messages.NoProfile, Menu: fsm.MenuMain}
	}
	return fsm.Reply{Text: config.Render("profile", d.cfg.Messages.Profile, user), Menu: fsm.MenuMain}
}

func (d *Dispatcher) jobList(header, empty string, jobs []records.Job) fsm.Reply {
	if len(jobs) == 0 {
		return fsm.Reply{Text: empty, Menu: fsm.MenuMain}
	}
	parts := make([]string, 0, len(jobs)+1)
	parts = append(parts, header)
	for _, j := range jobs {
		parts = append(parts, config.Render("job_item", d.cfg.Messages.JobItem, j))
	}
	return fsm.Reply{Text: strings.Join(parts, "\n\n"), Menu: fsm.MenuMain}
}

func (d *Dispatcher) listFailed(action string, err error) fsm.Reply {
	d.logger.Error("Menu action failed", zap.String("action", action), zap.Error(err))
	return fsm.Reply{Text: d.cfg.Messages.ListFailed, Menu: fsm.MenuMain, Err: err}
}
