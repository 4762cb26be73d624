package experiment

import (
	"encoding/csv"
	"io"
	"strconv"
)

// Header lists the CSV columns in the order Record writes them.
func Header() []string {
	return []string{
		"run_id", "combination", "role", "tom", "learning_rate", "can_lie", "opponent_tom",
		"rounds", "initial_points", "final_points", "gain", "nr_offers",
		"pareto_efficient", "pareto_rate", "elapsed_ms",
	}
}

// Record formats a row for CSV output.
func (r Row) Record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{
		r.RunID,
		strconv.Itoa(r.Combination),
		r.Role,
		strconv.Itoa(r.ToM),
		f(r.LearningRate),
		strconv.FormatBool(r.CanLie),
		strconv.Itoa(r.OpponentToM),
		strconv.Itoa(r.Rounds),
		f(r.InitialPoints),
		f(r.FinalPoints),
		f(r.Gain),
		f(r.NrOffers),
		strconv.FormatBool(r.ParetoEfficient),
		f(r.ParetoRate),
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
	}
}

// WriteCSV writes a header and one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
