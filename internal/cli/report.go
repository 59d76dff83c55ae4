package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carechain/internal/sqlite"
	"github.com/mesh-intelligence/carechain/pkg/provenance"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

// verifyResult is the machine-readable verdict for one batch.
type verifyResult struct {
	BatchID string             `json:"batchId"`
	Chain   *types.ChainReport `json:"chain,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <batch>...",
		Short: "Verify the hash chain of one or more batches",
		Long: "Verify each batch's hash chain. Exits 3 when any chain is broken and 2\n" +
			"when a batch could not be loaded.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				results, err := a.service(store).ReportMany(cmd.Context(), args)
				if err != nil {
					return sysErrorf("verify: %w", err)
				}

				out := make([]verifyResult, 0, len(results))
				for _, r := range results {
					vr := verifyResult{BatchID: r.BatchID}
					if r.Err != nil {
						vr.Error = r.Err.Error()
					} else {
						vr.Chain = &r.Report.Chain
					}
					out = append(out, vr)
				}

				if a.jsonMode {
					if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				} else {
					for _, vr := range out {
						printVerdict(cmd.OutOrStdout(), vr)
					}
				}
				return batchOutcome(results)
			})
		},
	}
}

func printVerdict(w io.Writer, vr verifyResult) {
	switch {
	case vr.Chain == nil:
		fmt.Fprintf(w, "%s %s: could not load: %s\n", brokenStyle.Render("ERROR "), vr.BatchID, vr.Error)
	case vr.Chain.Valid:
		fmt.Fprintf(w, "%s %s: %d events, head %s\n", okStyle.Render("OK    "), vr.BatchID, vr.Chain.Length, shortHash(vr.Chain.Head))
	default:
		fmt.Fprintf(w, "%s %s: broken at event %s: expected prevHash %s, found %s\n",
			brokenStyle.Render("BROKEN"), vr.BatchID, *vr.Chain.BrokenAtEventID,
			vr.Chain.ExpectedPrevHash, vr.Chain.FoundPrevHash)
	}
}

// batchOutcome turns per-batch results into the command's error. A broken
// chain outranks a load failure: it is a finding, the other is an absence
// of one.
func batchOutcome(results []provenance.BatchResult) error {
	var broken, failed []string
	var firstBroken, firstFailure error
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed = append(failed, r.BatchID)
			if firstFailure == nil {
				firstFailure = r.Err
			}
		case !r.Report.Chain.Valid:
			broken = append(broken, r.BatchID)
			if firstBroken == nil {
				firstBroken = r.Report.Chain.Err()
			}
		}
	}
	switch {
	case len(broken) > 0:
		return withCode(exitChainBroken, fmt.Errorf("tamper suspected in %s: %w", strings.Join(broken, ", "), firstBroken))
	case len(failed) > 0:
		return withCode(exitSysError, fmt.Errorf("could not load %s: %w", strings.Join(failed, ", "), firstFailure))
	}
	return nil
}

func newResourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resources <batch>...",
		Short: "Total the resources recorded for one or more batches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				results, err := a.service(store).ReportMany(cmd.Context(), args)
				if err != nil {
					return sysErrorf("resources: %w", err)
				}

				var failed []string
				var firstFailure error
				summaries := make(map[string]types.ResourceSummary, len(results))
				for _, r := range results {
					if r.Err != nil {
						failed = append(failed, r.BatchID)
						if firstFailure == nil {
							firstFailure = r.Err
						}
						continue
					}
					summaries[r.BatchID] = r.Report.Resources
				}

				if a.jsonMode {
					if err := writeJSON(cmd.OutOrStdout(), summaries); err != nil {
						return err
					}
				} else {
					t := newTable("BATCH", "EVENT TYPE", "TOTAL", "UNIT", "EVENTS")
					for _, r := range results {
						if r.Err != nil {
							t.add(r.BatchID, brokenStyle.Render("could not load"), "", "", "")
							continue
						}
						for _, name := range r.Report.Resources.Names() {
							rt := r.Report.Resources[name]
							t.add(r.BatchID, name, formatAmount(rt.Total), rt.Unit, strconv.Itoa(rt.EventCount))
						}
					}
					t.render(cmd.OutOrStdout())
				}

				if len(failed) > 0 {
					return withCode(exitSysError, fmt.Errorf("could not load %s: %w", strings.Join(failed, ", "), firstFailure))
				}
				return nil
			})
		},
	}
}

func newTraceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <batch>",
		Short: "Show a batch's full provenance report",
		Long:  "Show every event of a batch in time order with its payload, the chain verdict, and resource totals.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				report, err := a.service(store).Report(cmd.Context(), args[0])
				if err != nil {
					return withCode(exitSysError, err)
				}
				if a.jsonMode {
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printTrace(cmd.OutOrStdout(), report)
				}
				if err := report.Chain.Err(); err != nil {
					return withCode(exitChainBroken, err)
				}
				return nil
			})
		},
	}
}

func printTrace(w io.Writer, r *provenance.Report) {
	fmt.Fprintln(w, headerStyle.Render("Batch "+r.BatchID))

	t := newTable("#", "OCCURRED", "TYPE", "PAYLOAD", "HASH")
	for i, e := range r.Entries {
		desc := e.Description
		if e.Decoded {
			desc = formatPayload(e.Payload)
		}
		if e.Event.ImageURL != "" {
			desc += " " + mutedStyle.Render("[image "+e.Event.ImageURL+"]")
		}
		t.add(strconv.Itoa(i+1), e.Event.OccurredAt.Format(time.RFC3339), e.Event.EventType, desc, shortHash(e.Event.Hash))
	}
	t.render(w)
	fmt.Fprintln(w)

	var vr verifyResult
	vr.BatchID, vr.Chain = r.BatchID, &r.Chain
	printVerdict(w, vr)

	if len(r.Resources) > 0 {
		fmt.Fprintln(w)
		rt := newTable("EVENT TYPE", "TOTAL", "UNIT", "EVENTS")
		for _, name := range r.Resources.Names() {
			total := r.Resources[name]
			rt.add(name, formatAmount(total.Total), total.Unit, strconv.Itoa(total.EventCount))
		}
		rt.render(w)
	}
}

// formatPayload renders a decoded payload as key=value pairs sorted by key.
func formatPayload(p types.DecodedPayload) string {
	if len(p) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
