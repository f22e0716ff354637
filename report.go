package runindex

import (
	"fmt"
	"strings"

	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/validate"
)

// Report is a serializable summary of an opened run.
type Report struct {
	Shards            int                `json:"shards"`
	UnreadableShards  []string           `json:"unreadable_shards,omitempty"`
	Trains            int                `json:"trains"`
	Records           uint64             `json:"records"`
	FirstTrain        model.TrainID      `json:"first_train"`
	LastTrain         model.TrainID      `json:"last_train"`
	InstrumentSources []model.SourceID   `json:"instrument_sources"`
	ControlSources    []model.SourceID   `json:"control_sources"`
	Warnings          []validate.Warning `json:"warnings,omitempty"`
}

// Report summarizes the run: shard inventory, train span, sources by
// kind and every validation finding.
func (r *Run) Report() *Report {
	rep := &Report{
		Shards:     len(r.shards) + len(r.faults),
		Trains:     r.idx.NumTrains(),
		Records:    r.idx.Len(),
		FirstTrain: r.idx.FirstTrain(),
		LastTrain:  r.idx.LastTrain(),
		Warnings:   r.Warnings(),
	}
	for _, f := range r.faults {
		rep.UnreadableShards = append(rep.UnreadableShards, f.Name)
	}
	// Unclassified sources count as control, per model.SourceKind.
	for _, info := range r.idx.Sources() {
		switch info.Kind {
		case model.KindInstrument:
			rep.InstrumentSources = append(rep.InstrumentSources, info.ID)
		default:
			rep.ControlSources = append(rep.ControlSources, info.ID)
		}
	}
	return rep
}

// Duration returns the run's wall-clock span in seconds, assuming the
// standard 10 Hz train rate.
func (rep *Report) Duration() float64 {
	return float64(rep.LastTrain-rep.FirstTrain+1) / 10.0
}

// Summary renders a human-readable overview of the run.
func (rep *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# of trains:    %d\n", rep.Trains)
	fmt.Fprintf(&b, "# of records:   %d\n", rep.Records)
	fmt.Fprintf(&b, "Duration:       %.1f s\n", rep.Duration())
	fmt.Fprintf(&b, "First train ID: %d\n", rep.FirstTrain)
	fmt.Fprintf(&b, "Last train ID:  %d\n", rep.LastTrain)
	b.WriteString("\n")

	fmt.Fprintf(&b, "%d instrument sources:\n", len(rep.InstrumentSources))
	for _, id := range rep.InstrumentSources {
		fmt.Fprintf(&b, "  - %s\n", id)
	}
	fmt.Fprintf(&b, "%d control sources:\n", len(rep.ControlSources))
	for _, id := range rep.ControlSources {
		fmt.Fprintf(&b, "  - %s\n", id)
	}

	if n := len(rep.UnreadableShards); n > 0 {
		fmt.Fprintf(&b, "\n%d unreadable shard(s):\n", n)
		for _, name := range rep.UnreadableShards {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
	}
	if n := len(rep.Warnings); n > 0 {
		fmt.Fprintf(&b, "\n%d validation warning(s)\n", n)
	}

	return b.String()
}
