package commands

import (
	"fmt"
	"os"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/report"
	"catalogsync-backend/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var productDerived bool

func init() {
	stateProductCmd.Flags().BoolVar(&productDerived, "derived", false, "The key is a product url rather than a sku.")
	stateCmd.AddCommand(stateProductCmd)
	stateCmd.AddCommand(stateImageCmd)
	rootCmd.AddCommand(stateCmd)
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspects the state store.",
}

func withStore(cmd *cobra.Command, fn func(store state.Store) error) {
	c, err := loadConfig(cmd.Context(), overrides{})
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}
	store, err := openStore(cmd.Context(), c.State)
	if err != nil {
		serviceutil.Fatal("failed to open state store", err)
	}
	err = fn(store)
	store.Close()
	if err != nil {
		serviceutil.Fatal("failed to read state", err)
	}
}

var stateProductCmd = &cobra.Command{
	Use:   "product <key> [--derived]",
	Short: "Prints the fingerprint last written for a product.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := catalog.ProductKey{ID: args[0], Derived: productDerived}
		withStore(cmd, func(store state.Store) error {
			record, err := store.GetState(cmd.Context(), key)
			if err != nil {
				return err
			}
			if record == nil {
				fmt.Fprintf(os.Stderr, "no state for '%s'\n", key.ID)
				return nil
			}
			report.RenderState(os.Stdout, record)
			return nil
		})
	},
}

var stateImageCmd = &cobra.Command{
	Use:   "image <sha256>",
	Short: "Prints the hosted urls cached for an image hash.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd, func(store state.Store) error {
			entry, err := store.GetImageCache(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				fmt.Fprintf(os.Stderr, "no cached image for '%s'\n", args[0])
				return nil
			}
			report.RenderImage(os.Stdout, entry)
			return nil
		})
	},
}
