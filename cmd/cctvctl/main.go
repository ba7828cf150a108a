package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/logger"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/sync"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// env holds what every subcommand needs once the root has run.
type env struct {
	cfg     *config.Config
	repo    repository.Repository
	cameras *cameras.Service
	closer  io.Closer
}

func main() {
	var (
		configPath string
		e          env
	)

	root := &cobra.Command{
		Use:   "cctvctl",
		Short: "Maintenance commands for the CCTV detection report database",
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Config file path")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		closer, err := logger.Init(cfg.Log)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		timezone.Initialize(cfg.Server.Timezone)
		if err := db.Initialize(cfg); err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		repo := repository.NewSQLiteRepository(db.DB)
		e = env{cfg: cfg, repo: repo, cameras: cameras.NewService(repo), closer: closer}
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if e.closer != nil {
			return e.closer.Close()
		}
		return nil
	}

	root.AddCommand(addCSVFileCmd(&e), syncCamerasCmd(&e), syncRecordFilterCmd(&e), exclusionsCmd(&e))

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CCTV_CONFIG"); p != "" {
		return p
	}
	return "/config/config.yaml"
}

func addCSVFileCmd(e *env) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "add-csv-file <path>",
		Short: "Ingest a gzip or zip compressed report file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ing := ingest.NewIngester(e.repo, e.cameras, e.cfg.Ingest.BatchSize)
			result, err := ing.IngestReader(cmd.Context(), f, ingest.Options{
				Overwrite: overwrite,
				Source:    filepath.Base(args[0]),
			})
			if err != nil {
				return fmt.Errorf("ingest %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace counts of records that already exist")
	return cmd
}

func syncCamerasCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sync-cameras",
		Short: "Import cameras from a spreadsheet and export all cameras back to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = filepath.Join(e.cfg.Server.DataDir, "cameras.xlsx")
			}
			stats, err := sync.NewService(e.repo, e.cameras).SyncCameras(cmd.Context(), file)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet path (default <data_dir>/cameras.xlsx)")
	return cmd
}

func syncRecordFilterCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sync-record-filter",
		Short: "Apply exclusion ranges from a spreadsheet and export all ranges back to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = filepath.Join(e.cfg.Server.DataDir, "record_filter.xlsx")
			}
			stats, err := sync.NewService(e.repo, e.cameras).SyncExclusions(cmd.Context(), file)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Spreadsheet path (default <data_dir>/record_filter.xlsx)")
	return cmd
}

func exclusionsCmd(e *env) *cobra.Command {
	var model, camera string
	cmd := &cobra.Command{
		Use:   "exclusions",
		Short: "Print the merged exclusion intervals as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := exclusion.Filter{CameraRef: camera}
			if model != "" {
				m, err := models.ParseDetectorModel(model)
				if err != nil {
					return err
				}
				f.Model = m
			}
			entries, err := exclusion.NewRegistry(e.repo).ExclusionIntervals(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Only this detector model (tf1, tf2, yolo)")
	cmd.Flags().StringVar(&camera, "camera", "", "Only this camera reference")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
