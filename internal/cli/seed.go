package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/jsonfile"
)

// NewSeedCmd loads quiz content files into the question_sets table.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [files...]",
		Short: "Load quiz content JSON into Postgres",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}

			sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
			db := bun.NewDB(sqldb, pgdialect.New())
			defer db.Close()

			for _, path := range args {
				setID := strings.TrimSuffix(filepath.Base(path), ".json")
				loader := jsonfile.NewQuestionLoader(filepath.Dir(path))
				questions, err := loader.LoadQuestionSet(cmd.Context(), setID)
				if err != nil {
					return err
				}
				data, err := json.Marshal(questions)
				if err != nil {
					return err
				}
				_, err = db.ExecContext(cmd.Context(),
					`INSERT INTO question_sets (id, data) VALUES (?, ?::jsonb)
					 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
					setID, string(data))
				if err != nil {
					return fmt.Errorf("seed %s: %w", setID, err)
				}
				log.Info().Str("set_id", setID).Int("questions", len(questions)).Msg("seeded question set")
			}
			return nil
		},
	}
}
