package main

import (
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/prodigy/internal/mapreduce/event"
)

// EventsCmd groups the `prodigy events` subcommands.
type EventsCmd struct {
	Tail EventsTailCmd `cmd:"" help:"Print a job's event log."`
}

// EventsTailCmd is `prodigy events tail <job_id>`.
type EventsTailCmd struct {
	JobID string `arg:"" help:"Job id whose event log to print."`
	Repo  string `help:"Repository path." default:"."`
	JSON  bool   `help:"Print raw JSON lines instead of a human-readable summary."`
}

func (e *EventsTailCmd) Run(cli *CLI) error {
	layout, err := newLayout(e.Repo)
	if err != nil {
		return err
	}
	events, err := event.MergeDir(layout.EventsDir(e.JobID))
	if err != nil {
		return err
	}
	for _, ev := range events {
		if e.JSON {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("%s %-22s agent=%s item=%s %v\n",
			ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.EventType, ev.AgentID, ev.ItemID, ev.Data)
	}
	return nil
}
