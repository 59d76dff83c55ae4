package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carechain/internal/sqlite"
	"github.com/mesh-intelligence/carechain/pkg/schema"
	"github.com/mesh-intelligence/carechain/pkg/types"
)

// eventTypeView is an event type with its normalized fields.
type eventTypeView struct {
	*types.EventType
	Fields          []types.FieldSpec `json:"fields"`
	DescriptorError string            `json:"descriptorError,omitempty"`
}

func viewEventType(et *types.EventType) eventTypeView {
	specs, err := schema.ParseEventType(et)
	v := eventTypeView{EventType: et, Fields: specs}
	if err != nil {
		v.DescriptorError = err.Error()
	}
	return v
}

func newEventTypeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "eventtype",
		Aliases: []string{"eventtypes", "et"},
		Short:   "Manage the event type catalog",
	}
	cmd.AddCommand(newEventTypeListCmd(a), newEventTypeShowCmd(a), newEventTypeAddCmd(a))
	return cmd
}

func newEventTypeListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List event types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				ets, err := store.EventTypes(cmd.Context())
				if err != nil {
					return sysErrorf("list event types: %w", err)
				}
				views := make([]eventTypeView, 0, len(ets))
				for _, et := range ets {
					views = append(views, viewEventType(et))
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), views)
				}

				t := newTable("NAME", "FIELDS", "ID", "DESCRIPTION")
				for _, v := range views {
					fields := strconv.Itoa(len(v.Fields))
					if v.DescriptorError != "" {
						fields = "invalid"
					}
					t.add(v.Name, fields, v.ID, v.Description)
				}
				t.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newEventTypeShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show an event type and its payload fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				et, err := resolveEventType(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				v := viewEventType(et)
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), v)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", headerStyle.Render(v.Name), mutedStyle.Render(v.ID))
				if v.Description != "" {
					fmt.Fprintln(out, v.Description)
				}
				if v.DescriptorError != "" {
					fmt.Fprintf(out, "%s %s\n", brokenStyle.Render("descriptor unusable:"), v.DescriptorError)
					return nil
				}
				fmt.Fprintln(out)
				t := newTable("KEY", "LABEL", "TYPE", "REQUIRED", "CONSTRAINTS")
				for _, f := range v.Fields {
					t.add(f.Name, f.Label, string(f.Type), strconv.FormatBool(f.Required), constraints(f))
				}
				t.render(out)
				return nil
			})
		},
	}
}

func newEventTypeAddCmd(a *app) *cobra.Command {
	var name, desc, fields string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace an event type",
		Long: "Add an event type to the catalog. --fields takes a JSON array of labels\n" +
			`(["Water volume (l)"]) or of field objects ([{"label":"Rate","type":"number"}]).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				id, err := store.PutEventType(cmd.Context(), &types.EventType{
					Name:          name,
					Description:   desc,
					PayloadFields: fields,
				})
				switch {
				case errors.Is(err, types.ErrInvalidName),
					errors.Is(err, types.ErrDuplicateName),
					errors.Is(err, types.ErrInvalidDescriptor):
					return userErrorf("%w", err)
				case err != nil:
					return sysErrorf("save event type: %w", err)
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id, "name": strings.TrimSpace(name)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "event type name (required)")
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&fields, "fields", "", "payload field descriptor as JSON")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// constraints summarizes a field's options and bounds.
func constraints(f types.FieldSpec) string {
	var parts []string
	if len(f.Options) > 0 {
		vals := make([]string, 0, len(f.Options))
		for _, o := range f.Options {
			vals = append(vals, o.Value)
		}
		parts = append(parts, "one of "+strings.Join(vals, "|"))
	}
	if f.Min != nil {
		parts = append(parts, "min "+strconv.FormatFloat(*f.Min, 'g', -1, 64))
	}
	if f.Max != nil {
		parts = append(parts, "max "+strconv.FormatFloat(*f.Max, 'g', -1, 64))
	}
	return strings.Join(parts, ", ")
}
