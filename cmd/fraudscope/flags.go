package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/flags"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect and modify feature flags",
	Long: `Feature flags control graph selection rollout. Definitions are stored
in ~/.fraudscope/flags.db; HYBRID_FLAG_* environment variables override
stored values at run time.`,
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		featureFlags, store, err := openFlagSet()
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}

		fmt.Printf("%-30s %-8s %-14s %s\n", "NAME", "ENABLED", "MODE", "ROLLOUT")
		for _, flag := range featureFlags.All() {
			fmt.Printf("%-30s %-8v %-14s %d%%\n",
				flag.Name, flag.Enabled, flag.DeploymentMode, flag.RolloutPercentage)
		}
		return nil
	},
}

var flagsEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a feature flag",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], true) },
}

var flagsDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a feature flag",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], false) },
}

var flagsRolloutCmd = &cobra.Command{
	Use:   "rollout <name> <percentage>",
	Short: "Set a flag's rollout percentage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		percentage, err := strconv.Atoi(args[1])
		if err != nil || percentage < 0 || percentage > 100 {
			return fmt.Errorf("percentage must be an integer in [0,100]")
		}
		return updateFlag(args[0], func(flag *flags.Flag) {
			flag.RolloutPercentage = percentage
		})
	},
}

func init() {
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsEnableCmd)
	flagsCmd.AddCommand(flagsDisableCmd)
	flagsCmd.AddCommand(flagsRolloutCmd)
}

func flagStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".fraudscope")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "flags.db"), nil
}

func openFlagSet() (*flags.FeatureFlags, *flags.Store, error) {
	path, err := flagStorePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := flags.OpenStore(path)
	if err != nil {
		logger.WithError(err).Debug("Flag store unavailable, showing defaults")
		return flags.New(), nil, nil
	}
	featureFlags, err := store.LoadAll()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return featureFlags, store, nil
}

func setEnabled(name string, enabled bool) error {
	return updateFlag(name, func(flag *flags.Flag) {
		flag.Enabled = enabled
	})
}

func updateFlag(name string, mutate func(*flags.Flag)) error {
	featureFlags, store, err := openFlagSet()
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("flag store unavailable")
	}
	defer store.Close()

	flag, ok := featureFlags.Get(name)
	if !ok {
		return fmt.Errorf("unknown flag %q", name)
	}
	mutate(&flag)
	if err := store.Save(flag); err != nil {
		return err
	}
	fmt.Printf("%s: enabled=%v rollout=%d%% mode=%s\n",
		flag.Name, flag.Enabled, flag.RolloutPercentage, flag.DeploymentMode)
	return nil
}
