package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/carechain/internal/sqlite"
	"github.com/mesh-intelligence/carechain/pkg/payload"
	"github.com/mesh-intelligence/carechain/pkg/schema"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

func newEventCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "event",
		Aliases: []string{"events"},
		Short:   "Record and list care events",
	}
	cmd.AddCommand(newEventAddCmd(a), newEventListCmd(a), newEventImportCmd(a))
	return cmd
}

func newEventAddCmd(a *app) *cobra.Command {
	var (
		batchID, typeRef, at, image string
		fields                      []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Validate a payload and append an event to a batch",
		Long: "Append a care event. Each --field is key=value, where key is the payload\n" +
			"key (water_volume_(l)) or the field label (\"Water volume (l)\").",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			occurredAt, err := parseWhen(at)
			if err != nil {
				return userErrorf("--at: %w", err)
			}
			raw, err := parseFieldArgs(fields)
			if err != nil {
				return userErrorf("%w", err)
			}

			return a.withStore(func(store *sqlite.Backend) error {
				ctx := cmd.Context()
				et, err := resolveEventType(ctx, store, typeRef)
				if err != nil {
					return err
				}
				specs, _ := schema.ParseEventType(et)
				values := matchFieldKeys(specs, raw)
				for key := range values {
					if _, ok := schema.Lookup(specs, key); !ok {
						a.logger.Warn("ignoring unknown field", zap.String("field", key), zap.String("event_type", et.Name))
					}
				}

				canonical, err := a.service(store).Prepare(ctx, et.ID, values)
				var verrs types.ValidationErrors
				switch {
				case errors.As(err, &verrs):
					printValidationErrors(cmd.ErrOrStderr(), verrs)
					return withCode(exitUserError, err)
				case err != nil:
					return sysErrorf("%w", err)
				}

				evt, err := store.AppendEvent(ctx, &types.CareEvent{
					BatchID:    batchID,
					EventType:  et.Name,
					OccurredAt: occurredAt,
					Payload:    canonical,
					ImageURL:   image,
				})
				switch {
				case errors.Is(err, types.ErrInvalidData), errors.Is(err, types.ErrNotFound):
					return userErrorf("%w", err)
				case err != nil:
					return sysErrorf("append event: %w", err)
				}

				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), evt)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appended %s to %s\nhash %s\n", evt.ID, evt.BatchID, evt.Hash)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "batch id (required)")
	cmd.Flags().StringVar(&typeRef, "type", "", "event type id or name (required)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "payload field as key=value (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", "occurrence time, RFC 3339 or YYYY-MM-DD (default: now)")
	cmd.Flags().StringVar(&image, "image", "", "image URL")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newEventListCmd(a *app) *cobra.Command {
	var batchID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a batch's events in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				events, err := store.BatchEvents(cmd.Context(), batchID)
				if err != nil {
					return sysErrorf("list events: %w", err)
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				t := newTable("OCCURRED", "TYPE", "ID", "HASH", "PAYLOAD")
				for _, e := range events {
					p, desc, ok := payload.Describe(e.Payload)
					if ok {
						desc = formatPayload(p)
					}
					t.add(e.OccurredAt.Format(time.RFC3339), e.EventType, e.ID, shortHash(e.Hash), desc)
				}
				t.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "batch id (required)")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newEventImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import externally recorded events verbatim",
		Long: "Import care events, one JSON object per line, keeping their hash and\n" +
			"prevHash untouched so the foreign chain can be verified. Use - for stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := readEventsFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(store *sqlite.Backend) error {
				n, err := store.ImportEvents(cmd.Context(), events)
				switch {
				case errors.Is(err, types.ErrInvalidID), errors.Is(err, types.ErrInvalidData):
					return userErrorf("%w", err)
				case err != nil:
					return sysErrorf("import events: %w", err)
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"read": len(events), "imported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d events\n", n, len(events))
				return nil
			})
		},
	}
}

// parseFieldArgs splits key=value arguments. The value may contain '='.
func parseFieldArgs(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--field %q: expected key=value", arg)
		}
		values[key] = value
	}
	return values, nil
}

// matchFieldKeys rewrites label-style keys to the payload keys they derive
// to. Keys that already name a field, or match nothing, are kept.
func matchFieldKeys(specs []types.FieldSpec, raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		if _, ok := schema.Lookup(specs, key); !ok {
			if derived := schema.DeriveKey(key); derived != key {
				if _, ok := schema.Lookup(specs, derived); ok {
					key = derived
				}
			}
		}
		out[key] = value
	}
	return out
}

// parseWhen accepts RFC 3339 or a bare date. Empty means "now", left to the
// store.
func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

func printValidationErrors(w io.Writer, verrs types.ValidationErrors) {
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := verrs[k]
		fmt.Fprintf(w, "  %s: %s (%s)\n", e.Field, e.Message, e.Kind)
	}
}

// readEventsFile decodes one care event per non-blank line.
func readEventsFile(stdin io.Reader, path string) ([]*types.CareEvent, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, userErrorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var events []*types.CareEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var evt types.CareEvent
		if err := json.Unmarshal([]byte(text), &evt); err != nil {
			return nil, userErrorf("%s:%d: %w", path, line, err)
		}
		events = append(events, &evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, sysErrorf("read %s: %w", path, err)
	}
	return events, nil
}
