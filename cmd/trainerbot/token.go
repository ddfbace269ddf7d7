// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trainerbot/trainerbot/internal/cache"
	"github.com/trainerbot/trainerbot/internal/settings"
	"github.com/trainerbot/trainerbot/internal/store"
)

// now is the clock used for expiry checks.
var now = time.Now

// NewTokenCmd creates the token subcommand.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and prune cached access tokens",
	}
	cmd.PersistentFlags().String("storage-backend", "", "token and artifact storage (file or postgres)")
	cmd.PersistentFlags().String("storage-root", "", "directory holding data/ and Cache/")
	cmd.PersistentFlags().String("database-url", "", "postgres connection string for the postgres backend")

	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenPurgeCmd())
	return cmd
}

// withTokens opens the configured store and runs fn with a token cache over it.
func withTokens(cmd *cobra.Command, fn func(tokens *cache.TokenCache) error) error {
	cfg, err := loadStorage(cmd)
	if err != nil {
		return err
	}
	st, release, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer release()
	return fn(cache.NewTokenCache(st, slog.Default()))
}

// openStore is a seam for tests.
var openStore = func(cmd *cobra.Command, cfg settings.StorageSettings) (store.Store, func(), error) {
	return store.Open(cmd.Context(), cfg)
}

func newTokenListCmd() *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached tokens and their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pattern glob.Glob
			if match != "" {
				g, err := glob.Compile(match)
				if err != nil {
					return oops.Code("TOKEN_MATCH_INVALID").With("match", match).Wrap(err)
				}
				pattern = g
			}

			return withTokens(cmd, func(tokens *cache.TokenCache) error {
				owners, err := tokens.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, owner := range owners {
					if pattern != nil && !pattern.Match(owner) {
						continue
					}
					token, ok := tokens.Load(cmd.Context(), owner)
					if !ok {
						fmt.Fprintf(out, "%s\tunreadable\n", owner)
						continue
					}
					status := "valid"
					if !cache.IsUsable(token, now()) {
						status = "expired"
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", owner, token.ExpiresAt.UTC().Format(time.RFC3339), status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "only list owners matching this glob (e.g. \"*-google\")")
	return cmd
}

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <owner>",
		Short: "Print a cached token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTokens(cmd, func(tokens *cache.TokenCache) error {
				token, ok := tokens.Load(cmd.Context(), args[0])
				if !ok {
					return oops.Code("TOKEN_NOT_FOUND").With("owner", args[0]).Errorf("no cached token for %s", args[0])
				}
				data, err := json.MarshalIndent(token, "", "  ")
				if err != nil {
					return oops.Code("TOKEN_ENCODE_FAILED").With("owner", args[0]).Wrap(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
}

func newTokenPurgeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired or unreadable tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTokens(cmd, func(tokens *cache.TokenCache) error {
				owners, err := tokens.List(cmd.Context())
				if err != nil {
					return err
				}
				purged := 0
				for _, owner := range owners {
					token, ok := tokens.Load(cmd.Context(), owner)
					if !all && ok && cache.IsUsable(token, now()) {
						continue
					}
					if err := tokens.Delete(cmd.Context(), owner); err != nil {
						return err
					}
					purged++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d token(s)\n", purged)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every cached token")
	return cmd
}
