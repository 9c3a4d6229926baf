package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuisplit/internal/splitfile"
	"github.com/verte-zerg/tuisplit/internal/store"
)

var (
	groupName     string
	groupSplits   string
	groupFromFile string
)

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List split groups",
		Args:  cobra.NoArgs,
		RunE:  runGroupsCmd,
	}
}

func runGroupsCmd(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	groups, err := st.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		logErrln("No groups yet. Create one with: tuisplit group create --name <name> --splits a,b,c")
		return nil
	}
	for _, g := range groups {
		templates, err := st.GetTemplatesForGroup(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("failed to load splits for group %d: %w", g.ID, err)
		}
		if err := writeOut(cmd.OutOrStdout(), "%d\t%s\t%d splits\n", g.ID, g.Name, len(templates)); err != nil {
			return err
		}
	}
	return nil
}

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Create or delete split groups",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group from a list of split names",
		Args:  cobra.NoArgs,
		RunE:  runGroupCreateCmd,
	}
	createCmd.Flags().StringVar(&groupName, "name", "", "group name")
	createCmd.Flags().StringVar(&groupSplits, "splits", "", "comma separated split names")
	createCmd.Flags().StringVar(&groupFromFile, "from-file", "", "file with one split name per line")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a group with its splits and runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runGroupDeleteCmd,
	}

	cmd.AddCommand(createCmd, deleteCmd)
	return cmd
}

func runGroupCreateCmd(cmd *cobra.Command, _ []string) error {
	if groupSplits != "" && groupFromFile != "" {
		return fmt.Errorf("use either --splits or --from-file")
	}
	var names []string
	switch {
	case groupFromFile != "":
		loaded, err := splitfile.LoadNames(groupFromFile)
		if err != nil {
			return fmt.Errorf("failed to load split file: %w", err)
		}
		names = loaded
	default:
		names = splitfile.ParseList(groupSplits)
	}
	if len(names) > splitfile.MaxSplits {
		logErrf("Only the first %d splits are kept\n", splitfile.MaxSplits)
	}
	names = splitfile.NormalizeNames(names)
	name := splitfile.GroupName(groupName)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	id, err := st.CreateGroup(cmd.Context(), name, names)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	log.WithField("group", id).WithField("splits", len(names)).Debug("group created")
	return writeOut(cmd.OutOrStdout(), "Created group %d (%s) with %d splits\n", id, name, len(names))
}

func runGroupDeleteCmd(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.DeleteGroup(cmd.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("group %d not found", id)
		}
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return writeOut(cmd.OutOrStdout(), "Deleted group %d\n", id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// resolveGroup picks the flag value, then the configured group, then the first group.
func resolveGroup(ctx context.Context, st *store.Store, flagValue int64) (int64, error) {
	if flagValue > 0 {
		return flagValue, nil
	}
	if fileCfg.Timer.Group != nil && *fileCfg.Timer.Group > 0 {
		return *fileCfg.Timer.Group, nil
	}
	groups, err := st.ListGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list groups: %w", err)
	}
	if len(groups) == 0 {
		return 0, fmt.Errorf("no groups yet; create one with: tuisplit group create")
	}
	return groups[0].ID, nil
}
