package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	kerrors "github.com/systmms/keyrotate/internal/errors"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// VersionStatus is one row of the versions table.
type VersionStatus struct {
	ID          string           `json:"id"`
	Stages      []rotation.Stage `json:"stages"`
	AccessKeyID string           `json:"access_key_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// KeyStatus is one row of the access keys table.
type KeyStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	TrackedBy []string  `json:"tracked_by"`
}

// RecordStatus compares the record's versions with the principal's keys.
type RecordStatus struct {
	RecordID  string          `json:"record_id"`
	Principal string          `json:"principal"`
	Versions  []VersionStatus `json:"versions"`
	Keys      []KeyStatus     `json:"keys"`
	Drift     []string        `json:"drift"`
}

// NewStatusCommand creates the status command
func NewStatusCommand(state *State) *cobra.Command {
	var (
		secretID string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show secret versions, access keys and drift between them",
		Long: `Show the versions of the rotated secret with their stages next to the
principal's access keys, and flag any disagreement:

- a live key that no secret version references (the next createSecret deletes it)
- a current version whose key no longer exists
- a pending version left behind by an interrupted rotation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.components(cmd.Context())
			if err != nil {
				return err
			}

			status, err := collectStatus(cmd, c, state.recordID(secretID), state.Config.Principal)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				enc := json.NewEncoder(state.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			case "table":
				return outputStatusTable(state, status)
			default:
				return fmt.Errorf("unknown format %q: use table or json", format)
			}
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret to inspect (default: record_id from config)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json")

	return cmd
}

func collectStatus(cmd *cobra.Command, c *Components, recordID, principal string) (*RecordStatus, error) {
	ctx := cmd.Context()
	status := &RecordStatus{RecordID: recordID, Principal: principal}

	versions, err := c.Store.ListVersions(ctx, recordID)
	if err != nil {
		return nil, kerrors.UserError{
			Message:    fmt.Sprintf("Failed to list versions of %s", recordID),
			Details:    err.Error(),
			Suggestion: "Check the secret name and region, or create it with 'keyrotate init'",
			Err:        err,
		}
	}

	tracked := map[string][]string{}
	for _, v := range versions {
		row := VersionStatus{ID: v.ID, Stages: v.Stages, CreatedAt: v.CreatedAt}
		full, err := c.Store.GetVersion(ctx, recordID, rotation.VersionSelector{VersionID: v.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to read version %s: %w", v.ID, err)
		}
		if full.Payload != nil {
			row.AccessKeyID = full.Payload.AccessKeyID
			for _, stage := range v.Stages {
				tracked[row.AccessKeyID] = append(tracked[row.AccessKeyID], string(stage))
			}
		}
		status.Versions = append(status.Versions, row)
	}

	keys, err := c.Authority.List(ctx, principal)
	if err != nil {
		return nil, kerrors.ProviderError("iam", "ListAccessKeys", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })

	live := map[string]bool{}
	for _, k := range keys {
		live[k.ID] = true
		status.Keys = append(status.Keys, KeyStatus{
			ID:        k.ID,
			Status:    string(k.Status),
			CreatedAt: k.CreatedAt,
			TrackedBy: tracked[k.ID],
		})
		if len(tracked[k.ID]) == 0 {
			status.Drift = append(status.Drift, fmt.Sprintf("access key %s is not referenced by any version", k.ID))
		}
	}

	for _, v := range status.Versions {
		for _, stage := range v.Stages {
			switch stage {
			case rotation.StageCurrent:
				if rotation.IsAccessKeyID(v.AccessKeyID) && !live[v.AccessKeyID] {
					status.Drift = append(status.Drift, fmt.Sprintf("current version %s references missing key %s", v.ID, v.AccessKeyID))
				}
			case rotation.StagePending:
				status.Drift = append(status.Drift, fmt.Sprintf("version %s is still pending: a rotation did not finish", v.ID))
			}
		}
	}

	return status, nil
}

func outputStatusTable(state *State, status *RecordStatus) error {
	color := !state.NoColor

	fmt.Fprintf(state.Out, "Secret %s\n", status.RecordID)
	versions := [][]string{}
	for _, v := range status.Versions {
		stages := make([]string, 0, len(v.Stages))
		for _, s := range v.Stages {
			stages = append(stages, string(s))
		}
		versions = append(versions, []string{v.ID, strings.Join(stages, ","), v.AccessKeyID, formatTime(v.CreatedAt)})
	}
	fmt.Fprintln(state.Out, formatTable([]string{"Version", "Stages", "Access Key", "Created"}, versions, color))

	fmt.Fprintf(state.Out, "Access keys of %s\n", status.Principal)
	keys := [][]string{}
	for _, k := range status.Keys {
		tracked := strings.Join(k.TrackedBy, ",")
		if tracked == "" {
			tracked = "untracked"
		}
		keys = append(keys, []string{k.ID, k.Status, formatTime(k.CreatedAt), tracked})
	}
	fmt.Fprintln(state.Out, formatTable([]string{"Access Key", "Status", "Created", "Tracked By"}, keys, color))

	if len(status.Drift) == 0 {
		fmt.Fprintln(state.Out, "✅ Secret and access keys agree")
		return nil
	}
	for _, d := range status.Drift {
		fmt.Fprintf(state.Out, "⚠️  %s\n", d)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTable(header []string, data [][]string, color bool) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(true)
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetRowSeparator("―")
	table.SetRowLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")

	if color {
		colors := make([]tablewriter.Colors, len(header))
		for i := range colors {
			colors[i] = tablewriter.Color(tablewriter.FgBlueColor)
		}
		table.SetHeaderColor(colors...)
	}

	table.AppendBulk(data)

	table.Render()
	return tableString.String()
}
