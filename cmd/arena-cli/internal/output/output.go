// Package output formats topics, events and battle results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/domain"
	"github.com/nfrund/hexarena/internal/session"
	"github.com/nfrund/hexarena/internal/topics"
)

// TopicsTable displays topics in a formatted table
func TopicsTable(w io.Writer, list []topics.Topic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tMODULE\tDESCRIPTION\tEXAMPLE")
	fmt.Fprintln(tw, "----\t------\t-----------\t-------")
	for _, topic := range list {
		module := topic.Module
		if module == "" {
			module = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			topic.Name,
			module,
			truncateString(topic.Description, 50),
			truncateString(topic.Example, 40))
	}
}

// TopicsJSON displays topics in JSON format
func TopicsJSON(w io.Writer, list []topics.Topic) error {
	out := struct {
		Topics []topics.Topic `json:"topics"`
		Count  int            `json:"count"`
	}{Topics: list, Count: len(list)}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// EventJSON writes one event per line.
func EventJSON(w io.Writer, ev broadcast.Event) error {
	return json.NewEncoder(w).Encode(ev)
}

// EventLine writes a one-line human summary of an event.
func EventLine(w io.Writer, ev broadcast.Event) error {
	_, err := fmt.Fprintf(w, "%4d  e%-2d  %-20s %s\n", ev.Seq, ev.Epoch, ev.Type, describe(ev))
	return err
}

func describe(ev broadcast.Event) string {
	switch p := ev.Payload.(type) {
	case session.LobbyPayload:
		return fmt.Sprintf("%d/%d joined", len(p.Participants), p.Capacity)
	case session.CountdownPayload:
		return "countdown ends " + p.EndsAt.Format("15:04:05")
	case session.StartedPayload:
		return fmt.Sprintf("%d participants, %d epochs", len(p.Participants), p.Schedule.Total)
	case broadcast.EpochStartPayload:
		return fmt.Sprintf("phase %s, storm ring %d", p.Phase, p.HazardRing)
	case broadcast.OutcomePayload:
		if p.Winner == "" {
			return "no survivors"
		}
		return "winner " + p.Winner
	case session.StatePayload:
		return fmt.Sprintf("status %s, phase %s", p.Status, p.Phase.Phase)
	}
	return ""
}

// Summary prints the final standings, survivors first.
func Summary(w io.Writer, snap session.Snapshot) {
	ranked := slices.Clone(snap.State.Participants)
	slices.SortStableFunc(ranked, func(a, b domain.Participant) int {
		if a.Alive != b.Alive {
			if a.Alive {
				return -1
			}
			return 1
		}
		return b.HP - a.HP
	})

	fmt.Fprintf(w, "\nBattle %s %s after %d epochs (seed %d)\n\n", snap.ID, snap.Status, snap.State.Epoch, snap.State.Seed)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "NAME\tCLASS\tHP\tKILLS\tSURVIVED\t")
	for _, p := range ranked {
		mark := ""
		if p.ID == snap.Winner {
			mark = "winner"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", p.Name, p.Archetype, p.HP, p.Kills, p.EpochsSurvived, mark)
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
