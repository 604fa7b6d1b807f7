package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/chatport/chatport/internal/convert"
	"github.com/chatport/chatport/internal/source"
	"github.com/chatport/chatport/internal/source/dbexp"
	"github.com/chatport/chatport/internal/source/mmexp"
	"github.com/chatport/chatport/internal/source/slackexp"
)

var slackCmd = &cobra.Command{
	Use:   "slack <export-directory>",
	Short: "convert an unpacked Slack export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := slackexp.Open(args[0])
		if err != nil {
			return err
		}
		return runConvert(cmd.Context(), src)
	},
}

var mattermostCmd = &cobra.Command{
	Use:   "mattermost <export.jsonl>",
	Short: "convert a Mattermost bulk export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := mmexp.Open(args[0])
		if err != nil {
			return err
		}
		return runConvert(cmd.Context(), src)
	},
}

var databaseCmd = &cobra.Command{
	Use:   "database <archive.db>",
	Short: "convert a chat archive database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := dbexp.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer src.Close()
		return runConvert(cmd.Context(), src)
	},
}

func runConvert(ctx context.Context, src source.Source) error {
	cfg, err := loadParams()
	if err != nil {
		return err
	}
	cvt := convert.New(src, flagOutput,
		convert.WithConfig(cfg),
		convert.WithProgress(flagProgress),
	)
	return cvt.Convert(ctx)
}
